package parsing

import "git.cdm.community/cdm/cdm/src/models"

/*
Options selects which markup families a piece of text may use, and which
derived outputs to produce. Every field is a plain bool so Options can be
used as a map key; the engine caches one pipeline per distinct option set.
*/
type Options struct {
	AllowTitles          bool
	AllowCodeBlocks      bool
	AllowAlertsBox       bool
	AllowTextFormating   bool
	AllowTextExtra       bool
	AllowTextAlignments  bool
	AllowTextDirections  bool
	AllowTextModifiers   bool
	AllowTextColors      bool
	AllowSpoilers        bool
	AllowFigures         bool
	AllowLists           bool
	AllowTodoLists       bool
	AllowDefinitionLists bool
	AllowTables          bool
	AllowQuotes          bool
	AllowFootnotes       bool
	AllowAcronyms        bool
	AllowLinks           bool
	AllowMedias          bool
	AllowCdmExtra        bool

	ForceNofollow bool

	RenderTextVersion  bool
	RenderExtraDict    bool
	MergeFootnotesText bool
	MergeFootnotesHTML bool
}

type Result struct {
	HTML string
	// Only filled in with RenderTextVersion.
	Text string
	// Only filled in with RenderExtraDict.
	SummaryHTML   string
	FootnotesHTML string
}

// Everything on. Used for article bodies.
var ArticleContentOptions = Options{
	AllowTitles:          true,
	AllowCodeBlocks:      true,
	AllowAlertsBox:       true,
	AllowTextFormating:   true,
	AllowTextExtra:       true,
	AllowTextAlignments:  true,
	AllowTextDirections:  true,
	AllowTextModifiers:   true,
	AllowTextColors:      true,
	AllowSpoilers:        true,
	AllowFigures:         true,
	AllowLists:           true,
	AllowTodoLists:       true,
	AllowDefinitionLists: true,
	AllowTables:          true,
	AllowQuotes:          true,
	AllowFootnotes:       true,
	AllowAcronyms:        true,
	AllowLinks:           true,
	AllowMedias:          true,
	AllowCdmExtra:        true,

	RenderTextVersion: true,
	RenderExtraDict:   true,
}

var ArticleDescriptionOptions = Options{
	AllowTextFormating: true,
	AllowAcronyms:      true,
	AllowLinks:         true,
	AllowCdmExtra:      true,
	RenderTextVersion:  true,
}

// Categories, tags, notes and licenses.
var TaxonomyDescriptionOptions = Options{
	AllowTextFormating: true,
	AllowTextExtra:     true,
	AllowTextModifiers: true,
	AllowAcronyms:      true,
	AllowLinks:         true,
	AllowLists:         true,
	AllowCdmExtra:      true,
	RenderTextVersion:  true,
}

var SnippetDescriptionOptions = Options{
	AllowTextFormating: true,
	AllowTextExtra:     true,
	AllowTextModifiers: true,
	AllowAcronyms:      true,
	AllowLinks:         true,
	AllowLists:         true,
	AllowCodeBlocks:    true,
	RenderTextVersion:  true,
}

var PrivateMessageOptions = Options{
	AllowCodeBlocks:    true,
	AllowTextFormating: true,
	AllowTextExtra:     true,
	AllowTextModifiers: true,
	AllowSpoilers:      true,
	AllowLists:         true,
	AllowTodoLists:     true,
	AllowTables:        true,
	AllowQuotes:        true,
	AllowAcronyms:      true,
	AllowLinks:         true,
	AllowMedias:        true,
	ForceNofollow:      true,
}

/*
TicketOptions is the option set for bug tracker text written by author. Users
can be granted a few extra families on top of the base set, and users with
allow_raw_link get followable links.
*/
func TicketOptions(author *models.User) Options {
	opts := Options{
		AllowCodeBlocks:    true,
		AllowTextFormating: true,
		AllowTextExtra:     true,
		AllowTextModifiers: true,
		AllowSpoilers:      true,
		AllowLists:         true,
		AllowTodoLists:     true,
		AllowTables:        true,
		AllowQuotes:        true,
		AllowFootnotes:     true,
		AllowAcronyms:      true,
		AllowLinks:         true,
		AllowMedias:        true,
		ForceNofollow:      true,
		RenderTextVersion:  true,
		MergeFootnotesHTML: true,
		MergeFootnotesText: true,
	}
	opts.AllowTitles = author.Has(models.PermAllowTitles)
	opts.AllowAlertsBox = author.Has(models.PermAllowAlertsBox)
	opts.AllowTextColors = author.Has(models.PermAllowTextColors)
	opts.AllowCdmExtra = author.Has(models.PermAllowCdmExtra)
	if author.Has(models.PermAllowRawLink) {
		opts.ForceNofollow = false
	}
	return opts
}
