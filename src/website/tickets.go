package website

import (
	"net/http"
	"time"

	"git.cdm.community/cdm/cdm/src/bugtracker"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/urls"
	"git.cdm.community/cdm/cdm/src/users"
	"git.cdm.community/cdm/cdm/src/utils"
)

type commentJson struct {
	ID        int       `json:"id"`
	Anchor    string    `json:"anchor"`
	Permalink string    `json:"permalink"`
	Author    string    `json:"author"`
	PubDate   time.Time `json:"pub_date"`
	BodyHtml  string    `json:"body_html"`
}

type ticketJson struct {
	ID              int                     `json:"id"`
	Url             string                  `json:"url"`
	Title           string                  `json:"title"`
	Status          models.TicketStatus     `json:"status"`
	Priority        models.TicketPriority   `json:"priority"`
	Difficulty      models.TicketDifficulty `json:"difficulty"`
	Submitter       string                  `json:"submitter"`
	DescriptionHtml string                  `json:"description_html"`
	Submitted       time.Time               `json:"submitted"`
	LastModified    time.Time               `json:"last_modified"`

	Page     int           `json:"page"`
	NumPages int           `json:"num_pages"`
	Comments []commentJson `json:"comments"`
}

func Ticket(c *RequestContext) ResponseData {
	id, ok := c.IntParam("id")
	if !ok {
		return FourOhFour(c)
	}
	ticket, err := bugtracker.FetchTicket(c, c.Conn, id)
	if err != nil {
		return c.ErrorFor(err)
	}

	perPage := config.Config.BugTracker.IssueCommentsPerPage
	numComments, err := bugtracker.CountComments(c, c.Conn, ticket.ID)
	if err != nil {
		return c.ErrorFor(err)
	}
	numPages := utils.NumPages(numComments, perPage)
	page := c.Page()
	if page > numPages {
		return c.Redirect(urls.BuildTicketPage(ticket.ID, numPages), http.StatusSeeOther)
	}

	comments, err := bugtracker.FetchComments(c, c.Conn, ticket.ID, perPage, (page-1)*perPage)
	if err != nil {
		return c.ErrorFor(err)
	}

	userIDs := []int{ticket.SubmitterID}
	for _, comment := range comments {
		userIDs = append(userIDs, comment.AuthorID)
	}
	names, err := users.FetchUsernames(c, c.Conn, userIDs)
	if err != nil {
		return c.ErrorFor(err)
	}

	result := ticketJson{
		ID:              ticket.ID,
		Url:             urls.BuildTicket(ticket.ID),
		Title:           ticket.Title,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		Difficulty:      ticket.Difficulty,
		Submitter:       names[ticket.SubmitterID],
		DescriptionHtml: ticket.DescriptionHtml,
		Submitted:       ticket.SubmissionDate,
		LastModified:    ticket.LastModificationDate,
		Page:            page,
		NumPages:        numPages,
		Comments:        make([]commentJson, 0, len(comments)),
	}
	for _, comment := range comments {
		result.Comments = append(result.Comments, commentJson{
			ID:        comment.ID,
			Anchor:    urls.CommentFragment(comment.ID),
			Permalink: urls.BuildTicketComment(comment.ID),
			Author:    names[comment.AuthorID],
			PubDate:   comment.PubDate,
			BodyHtml:  comment.BodyHtml,
		})
	}

	var res ResponseData
	res.MustWriteJson(result)
	return res
}

// Comment permalinks point at whichever page currently shows the comment.
func TicketComment(c *RequestContext) ResponseData {
	id, ok := c.IntParam("id")
	if !ok {
		return FourOhFour(c)
	}
	comment, err := bugtracker.FetchComment(c, c.Conn, id)
	if err != nil {
		return c.ErrorFor(err)
	}
	location, err := bugtracker.CommentLocation(c, c.Conn, comment, config.Config.BugTracker.IssueCommentsPerPage)
	if err != nil {
		return c.ErrorFor(err)
	}
	return c.Redirect(location, http.StatusFound)
}

type componentJson struct {
	InternalName string `json:"internal_name"`
	Name         string `json:"name"`
	Description  string `json:"description"`
}

func TicketComponents(c *RequestContext) ResponseData {
	components, err := bugtracker.FetchComponents(c, c.Conn)
	if err != nil {
		return c.ErrorFor(err)
	}

	result := make([]componentJson, 0, len(components))
	for _, component := range components {
		result = append(result, componentJson{
			InternalName: component.InternalName,
			Name:         component.Name,
			Description:  component.Description,
		})
	}

	var res ResponseData
	res.MustWriteJson(result)
	return res
}
