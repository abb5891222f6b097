package website

import (
	"net/http"
	"strconv"
	"time"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err, ok := recovered.(error)
				if !ok {
					err = oops.New(nil, "Recovered from panic with value: %v", recovered)
				}
				res = c.ErrorResponse(http.StatusInternalServerError, err)
			}
		}()

		return h(c)
	}
}

func withConn(conn db.ConnOrTx) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Conn = conn
			return h(c)
		}
	}
}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "cdm_http_request_duration_seconds",
	Help:    "Duration of website requests, by route and status",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
}, []string{"route", "method", "status"})

func trackRequestMetrics(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		start := time.Now()
		res := h(c)

		status := res.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.
			WithLabelValues(c.Route, c.Req.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		c.Logger.Debug().
			Str("method", c.Req.Method).
			Str("path", c.Req.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("served request")
		return res
	}
}

func logContextErrors(c *RequestContext, errs ...error) {
	for _, err := range errs {
		c.Logger.Error().Timestamp().Stack().Str("Requested", c.FullUrl()).Err(err).Msg("error occurred during request")
	}
}

func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		logContextErrors(c, res.Errors...)
		return res
	}
}
