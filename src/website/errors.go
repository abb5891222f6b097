package website

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"git.cdm.community/cdm/cdm/src/antiflood"
	"git.cdm.community/cdm/cdm/src/oops"
)

func FourOhFour(c *RequestContext) ResponseData {
	res := ResponseData{StatusCode: http.StatusNotFound}
	res.MustWriteJson(errorBody{
		Error:   "not_found",
		Message: fmt.Sprintf("Nothing at %s", c.Req.URL.Path),
	})
	return res
}

func StatusForKind(kind oops.Kind) int {
	switch kind {
	case oops.KindValidation:
		return http.StatusBadRequest
	case oops.KindNotFound:
		return http.StatusNotFound
	case oops.KindGone:
		return http.StatusGone
	case oops.KindPermissionDenied:
		return http.StatusForbidden
	case oops.KindFlooding:
		return http.StatusTooManyRequests
	case oops.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

/*
Turns an error from the domain packages into a response. Coded errors show
their code and message to the client, never the context they were wrapped
with; anything else is logged and answered with a generic 500.
*/
func (c *RequestContext) ErrorFor(err error) ResponseData {
	kind := oops.KindOf(err)
	status := StatusForKind(kind)
	if status == http.StatusInternalServerError {
		return c.ErrorResponse(status, err)
	}

	msg := ""
	var coded *oops.Coded
	var flood *antiflood.Error
	if errors.As(err, &coded) {
		msg = coded.Msg
	} else if errors.As(err, &flood) {
		msg = flood.Error()
	}

	res := ResponseData{StatusCode: status}
	if flood != nil {
		res.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(flood.Remaining.Seconds()))))
	}
	res.MustWriteJson(errorBody{
		Error:   oops.CodeOf(err),
		Message: msg,
	})
	return res
}
