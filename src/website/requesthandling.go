package website

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/urls"
	"github.com/rs/zerolog"
)

type Router struct {
	Routes []Route

	// Requests for a path without its trailing slash are redirected to the
	// slashed path when some route would match that.
	AppendSlash bool
}

type Route struct {
	Method  string
	Regexes []*regexp.Regexp
	Handler Handler
}

func (r *Route) String() string {
	var routeStrings []string
	for _, regex := range r.Regexes {
		routeStrings = append(routeStrings, regex.String())
	}
	return fmt.Sprintf("%s %v", r.Method, routeStrings)
}

type RouteBuilder struct {
	Router      *Router
	Prefixes    []*regexp.Regexp
	Middlewares []Middleware
}

type Handler func(c *RequestContext) ResponseData
type Middleware func(h Handler) Handler

func applyMiddlewares(h Handler, ms []Middleware) Handler {
	result := h
	for i := len(ms) - 1; i >= 0; i-- {
		result = ms[i](result)
	}
	return result
}

func (rb *RouteBuilder) Handle(methods []string, regex *regexp.Regexp, h Handler) {
	// Ensure that this regex matches the start of the string
	regexStr := regex.String()
	if len(regexStr) == 0 || regexStr[0] != '^' {
		panic("All routing regexes must begin with '^'")
	}

	h = applyMiddlewares(h, rb.Middlewares)
	for _, method := range methods {
		rb.Router.Routes = append(rb.Router.Routes, Route{
			Method:  method,
			Regexes: append(rb.Prefixes, regex),
			Handler: h,
		})
	}
}

func (rb *RouteBuilder) AnyMethod(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{""}, regex, h)
}

func (rb *RouteBuilder) GET(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodGet}, regex, h)
}

// Matches path against the route's regexes in turn. Each prefix consumes what
// it matched, except a trailing slash, which stays for the next regex.
func (route *Route) match(path string) (map[string]string, bool) {
	currentPath := path
	params := map[string]string{}
	for _, regex := range route.Regexes {
		match := regex.FindStringSubmatch(currentPath)
		if len(match) == 0 {
			return nil, false
		}

		subexpNames := regex.SubexpNames()
		for i, paramValue := range match {
			paramName := subexpNames[i]
			if paramName == "" {
				continue
			}
			if _, alreadyExists := params[paramName]; alreadyExists {
				logging.Warn().
					Str("route", route.String()).
					Str("paramName", paramName).
					Msg("duplicate names for path parameters; last one wins")
			}
			params[paramName] = paramValue
		}

		toConsume := strings.TrimSuffix(match[0], "/")
		currentPath = currentPath[len(toConsume):]
		if currentPath == "" {
			currentPath = "/"
		}
	}
	return params, true
}

// The first route that accepts method and path.
func (r *Router) find(method, path string) (*Route, map[string]string) {
	for i := range r.Routes {
		route := &r.Routes[i]
		if route.Method != "" && method != route.Method {
			continue
		}
		if params, ok := route.match(path); ok {
			return route, params
		}
	}
	return nil, nil
}

func (r *Router) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet // HEADs map to GETs for the purposes of routing
	}

	currentPath := req.URL.Path
	if currentPath == "" {
		currentPath = "/"
	}

	route, params := r.find(method, currentPath)
	if r.AppendSlash && !strings.HasSuffix(currentPath, "/") && (method == http.MethodGet) {
		if slashed, _ := r.find(method, currentPath+"/"); slashed != nil && (route == nil || route.isCatchAll()) {
			dest := *req.URL
			dest.Path = currentPath + "/"
			http.Redirect(rw, req, dest.String(), http.StatusMovedPermanently)
			return
		}
	}
	if route == nil {
		panic(fmt.Sprintf("Path '%s' did not match any routes! Make sure to register a wildcard route to act as a 404.", req.URL))
	}

	c := &RequestContext{
		Route:      route.String(),
		Logger:     logging.GlobalLogger(),
		Req:        req,
		Res:        rw,
		PathParams: params,
		Now:        time.Now(),

		ctx: req.Context(),
	}

	doRequest(rw, c, route.Handler)
}

func (route *Route) isCatchAll() bool {
	return len(route.Regexes) == 1 && route.Regexes[0].String() == "^"
}

type RequestContext struct {
	Route      string
	Logger     *zerolog.Logger
	Req        *http.Request
	PathParams map[string]string

	Res http.ResponseWriter

	Conn        db.ConnOrTx
	CurrentUser *models.User
	Now         time.Time

	ctx context.Context
}

// Our RequestContext is a context.Context

var _ context.Context = &RequestContext{}

func (c *RequestContext) Deadline() (time.Time, bool) {
	return c.ctx.Deadline()
}

func (c *RequestContext) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *RequestContext) Err() error {
	return c.ctx.Err()
}

func (c *RequestContext) Value(key any) any {
	return c.ctx.Value(key)
}

// Plus it does many other things specific to us

func (c *RequestContext) FullUrl() string {
	scheme := "http://"
	if proto := c.Req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto + "://"
	} else if c.Req.TLS != nil {
		scheme = "https://"
	}
	return scheme + c.Req.Host + c.Req.URL.String()
}

// The positive integer path parameter name, or false if it isn't one.
func (c *RequestContext) IntParam(name string) (int, bool) {
	n, err := strconv.Atoi(c.PathParams[name])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// The page number from the query string. Anything unparseable is page 1.
func (c *RequestContext) Page() int {
	page, err := strconv.Atoi(c.Req.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// Redirects to an absolute url, usually one from the urls package.
func (c *RequestContext) Redirect(dest string, code int) ResponseData {
	var res ResponseData

	destUrl, err := url.Parse(dest)
	if err != nil {
		c.Logger.Warn().Err(err).Str("dest", dest).Msg("Failed to parse redirect URI")
		return c.Redirect(urls.BuildHomepage(), http.StatusSeeOther)
	}
	dest = destUrl.String()

	res.Header().Set("Location", dest)
	res.StatusCode = code
	if c.Req.Method == http.MethodGet {
		res.Header().Set("Content-Type", "text/html; charset=utf-8")
		res.Write([]byte("<a href=\"" + html.EscapeString(dest) + "\">" + http.StatusText(code) + "</a>.\n"))
	}

	return res
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *RequestContext) ErrorResponse(status int, errs ...error) ResponseData {
	res := ResponseData{
		StatusCode: status,
		Errors:     errs,
	}
	res.MustWriteJson(errorBody{
		Error:   "internal",
		Message: "There was a problem handling your request.",
	})
	return res
}

type ResponseData struct {
	StatusCode int
	Body       *bytes.Buffer
	Errors     []error

	header http.Header
}

var _ http.ResponseWriter = &ResponseData{}

func (rd *ResponseData) Header() http.Header {
	if rd.header == nil {
		rd.header = make(http.Header)
	}

	return rd.header
}

func (rd *ResponseData) Write(p []byte) (n int, err error) {
	if rd.Body == nil {
		rd.Body = new(bytes.Buffer)
	}

	return rd.Body.Write(p)
}

func (rd *ResponseData) WriteHeader(status int) {
	rd.StatusCode = status
}

func (rd *ResponseData) WriteJson(data any) error {
	dataJson, err := json.Marshal(data)
	if err != nil {
		return err
	}
	rd.Header().Set("Content-Type", "application/json")
	rd.Write(dataJson)
	return nil
}

func (rd *ResponseData) MustWriteJson(data any) {
	if err := rd.WriteJson(data); err != nil {
		panic(err)
	}
}

func doRequest(rw http.ResponseWriter, c *RequestContext, h Handler) {
	defer func() {
		/*
			This panic recovery is the last resort. If you want to render
			an error page or something, make it a request wrapper.
		*/
		if recovered := recover(); recovered != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			logging.LogPanicValue(c.Logger, recovered, "request panicked and was not handled")
			rw.Write([]byte("There was a problem handling your request."))
		}
	}()

	// Run the chosen handler
	res := h(c)

	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}

	// Set Content-Type and Content-Length if necessary. This behavior would in
	// some cases be handled by http.ResponseWriter.Write, but we extract it so
	// that HEAD requests always return both headers.

	var preamble []byte // Any bytes we read to determine Content-Type
	if res.Body != nil {
		bodyLen := res.Body.Len()

		if res.Header().Get("Content-Type") == "" {
			preamble = res.Body.Next(512)
			rw.Header().Set("Content-Type", http.DetectContentType(preamble))
		}
		if res.Header().Get("Content-Length") == "" {
			rw.Header().Set("Content-Length", strconv.Itoa(bodyLen))
		}
	}

	// Ensure we send no body for HEAD requests
	if c.Req.Method == http.MethodHead {
		res.Body = nil
	}

	// Send remaining response headers
	for name, vals := range res.Header() {
		for _, val := range vals {
			rw.Header().Add(name, val)
		}
	}
	rw.WriteHeader(res.StatusCode)

	// Send response body
	if res.Body != nil {
		// Write preamble, if any
		_, err := rw.Write(preamble)
		if err != nil {
			if errors.Is(err, syscall.EPIPE) {
				// client hung up
				logging.Debug().Msg("Broken pipe")
			} else {
				logging.Error().Err(err).Msg("Failed to write response preamble")
			}
		}

		// Write remainder of body
		_, err = io.Copy(rw, res.Body)
		if err != nil {
			if errors.Is(err, syscall.EPIPE) {
				logging.Debug().Msg("Broken pipe")
			} else {
				logging.Error().Err(err).Msg("copied res.Body")
			}
		}
	}
}
