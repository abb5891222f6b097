package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/Masterminds/sprig"
)

var (
	templatesMu   sync.RWMutex
	textTemplates = make(map[string]*texttemplate.Template)
	htmlTemplates = make(map[string]*htmltemplate.Template)
)

// RegisterTemplate parses a notification template and stores it under name.
// Names ending in .html are parsed with html/template. Packages register their
// templates from init, so a bad template panics at startup.
func RegisterTemplate(name, source string) {
	templatesMu.Lock()
	defer templatesMu.Unlock()

	if strings.HasSuffix(name, ".html") {
		htmlTemplates[name] = htmltemplate.Must(htmltemplate.New(name).Funcs(sprig.HtmlFuncMap()).Parse(source))
	} else {
		textTemplates[name] = texttemplate.Must(texttemplate.New(name).Funcs(sprig.TxtFuncMap()).Parse(source))
	}
}

func renderTemplate(name string, data any) (string, error) {
	if name == "" {
		return "", nil
	}

	templatesMu.RLock()
	textTmpl, isText := textTemplates[name]
	htmlTmpl, isHTML := htmlTemplates[name]
	templatesMu.RUnlock()

	var buf bytes.Buffer
	var err error
	switch {
	case isText:
		err = textTmpl.Execute(&buf, data)
	case isHTML:
		err = htmlTmpl.Execute(&buf, data)
	default:
		return "", oops.New(nil, "no notification template named %s", name)
	}
	if err != nil {
		return "", oops.New(err, "failed to render notification template %s", name)
	}
	return buf.String(), nil
}

type rendered struct {
	Title string
	Text  string
	HTML  string
}

func render(n Notification) (rendered, error) {
	data := map[string]any{
		"Recipient": n.Recipient,
	}
	for k, v := range n.Context {
		data[k] = v
	}

	var res rendered
	var err error
	if res.Title, err = renderTemplate(n.TitleTemplate, data); err != nil {
		return rendered{}, err
	}
	res.Title = strings.TrimSpace(res.Title)
	if res.Text, err = renderTemplate(n.BodyTemplateText, data); err != nil {
		return rendered{}, err
	}
	if res.HTML, err = renderTemplate(n.BodyTemplateHTML, data); err != nil {
		return rendered{}, err
	}
	return res, nil
}
