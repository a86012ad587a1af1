package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

// handleHealth reports collaborator health. Only an unavailable log store
// makes the service unhealthy.
func (s *Server) handleHealth(c echo.Context) error {
	report := s.svc.Health(c.Request().Context())
	status := http.StatusOK
	if report.Status == devlog.HealthUnavailable {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

func (s *Server) handleAddLog(c echo.Context) error {
	var req AddLogRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	logType, err := devlog.ParseLogType(req.Type)
	if err != nil {
		return err
	}
	in := devlog.AddLogInput{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
		Module:  req.Module,
		Type:    logType,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}

	res, err := s.svc.AddLog(c.Request().Context(), in)
	if err != nil {
		return err
	}

	resp := AddLogResponse{Log: res.Log}
	if d := res.Deferred; d != nil {
		resp.IndexingDeferred = true
		resp.DeferredStage = d.Stage
		resp.DeferredReason = d.Cause.Error()
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetLog(c echo.Context) error {
	log, err := s.svc.GetLog(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, log)
}

func (s *Server) handleDeleteLog(c echo.Context) error {
	if err := s.svc.DeleteLog(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReindex(c echo.Context) error {
	id := c.Param("id")
	if err := s.svc.IndexLog(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ReindexResponse{ID: id, IndexStatus: devlog.StatusIndexed})
}

// handleListLogs serves GET /api/v1/logs?tags=a,b&module=&type=&from=&to=&limit=.
func (s *Server) handleListLogs(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	from, err := queryTime(c, "from", false)
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to", true)
	if err != nil {
		return err
	}

	filter, err := devlog.BuildFilter(c.QueryParams()["tags"], c.QueryParam("module"), c.QueryParam("type"), from, to)
	if err != nil {
		return err
	}

	logs, err := s.svc.ListLogSummaries(c.Request().Context(), devlog.ListInput{Filter: filter, Limit: limit})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListLogsResponse{Logs: logs, Count: len(logs)})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var from, to time.Time
	if req.From != nil {
		from = *req.From
	}
	if req.To != nil {
		to = *req.To
	}
	filter, err := devlog.BuildFilter(req.Tags, req.Module, req.Type, from, to)
	if err != nil {
		return err
	}

	results, err := s.svc.SearchLogs(c.Request().Context(), devlog.SearchInput{
		Query:  req.Query,
		Limit:  req.Limit,
		Filter: filter,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleContext(c echo.Context) error {
	pc, err := s.svc.GetProjectContext(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pc)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", devlog.ErrValidation, name)
	}
	return n, nil
}

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. With
// endOfDay a bare date covers the whole day.
func queryTime(c echo.Context, name string, endOfDay bool) (time.Time, error) {
	t, err := devlog.ParseTimeBound(c.QueryParam(name), endOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}
