/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wtsi-hgi/xferd/history"
	"github.com/wtsi-hgi/xferd/spec"
)

const (
	// EndPointREST is the base location for all REST endpoints.
	EndPointREST = "/rest/v1"

	transfersPath = "/transfers"

	// EndPointTransfers is the endpoint for queuing and listing transfers.
	EndPointTransfers = EndPointREST + transfersPath

	paramKey    = "key"
	paramLimit  = "limit"
	paramOrigin = "origin"

	ErrBadSpec  = Error("invalid transfer spec")
	ErrBadLimit = Error("invalid limit")
)

// addTransferEndpoints adds these endpoints to the REST API:
//
// POST /rest/v1/transfers : takes a transfer spec encoded as JSON in the body,
// and an optional "origin" query parameter describing where it came from, and
// queues it for transfer. Responds 202 with the queued history.Job.
//
// GET /rest/v1/transfers : returns the history.Jobs, most recent first,
// optionally limited by the "limit" query parameter.
//
// GET /rest/v1/transfers/[key] : returns the history.Job with the given key.
func (s *Server) addTransferEndpoints() {
	s.router.POST(EndPointTransfers, s.postTransfer)
	s.router.GET(EndPointTransfers, s.getTransfers)
	s.router.GET(EndPointTransfers+"/:"+paramKey, s.getTransfer)
}

func (s *Server) postTransfer(c *gin.Context) {
	sp, err := spec.Decode(c.Request.Body)
	if err != nil {
		c.AbortWithError(http.StatusBadRequest, ErrBadSpec) //nolint:errcheck

		return
	}

	origin := c.Query(paramOrigin)
	if origin == "" {
		origin = c.ClientIP()
	}

	job, err := s.Enqueue(sp, origin)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrStopped) {
			status = http.StatusServiceUnavailable
		}

		c.AbortWithError(status, err) //nolint:errcheck

		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) getTransfers(c *gin.Context) {
	limit := 0

	if l := c.Query(paramLimit); l != "" {
		var err error

		limit, err = strconv.Atoi(l)
		if err != nil {
			c.AbortWithError(http.StatusBadRequest, ErrBadLimit) //nolint:errcheck

			return
		}
	}

	jobs, err := s.db.List(limit)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck

		return
	}

	if jobs == nil {
		jobs = []*history.Job{}
	}

	c.JSON(http.StatusOK, jobs)
}

func (s *Server) getTransfer(c *gin.Context) {
	job, err := s.db.Get(c.Param(paramKey))
	if err != nil {
		var herr history.Error
		if errors.As(err, &herr) {
			c.AbortWithError(http.StatusNotFound, err) //nolint:errcheck

			return
		}

		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck

		return
	}

	c.JSON(http.StatusOK, job)
}
