package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
)

// Run godoc
// @Summary Run a module function
// @Description Validates the arguments against the module catalog and runs the function. Arguments are a flat JSON object or form fields.
// @Tags modules
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param module path string true "Module name"
// @Param function path string true "Function name"
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /{module}/run/{function} [post]
func (h *Handler) Run(c *gin.Context) {
	module := c.Param("module")
	function := c.Param("function")

	args, err := readArgs(c.Request)
	if err != nil {
		c.JSON(http.StatusOK, dispatch.Failure(err))
		return
	}

	out, err := h.deps.Calls.Invoke(c.Request.Context(), module, function, args)
	if err != nil {
		c.JSON(http.StatusOK, dispatch.Failure(err))
		return
	}
	c.JSON(http.StatusOK, dispatch.Success(out))
}

// readArgs collects call arguments from a JSON object or form body. JSON
// numbers and booleans are passed on in their text form; nulls are dropped.
func readArgs(r *http.Request) (map[string]string, error) {
	args := make(map[string]string)
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := r.ParseForm(); err != nil {
			return nil, errs.Wrap(errs.Validation, err, "invalid form body")
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				args[k] = v[0]
			}
		}
		return args, nil
	}

	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Wrap(errs.Validation, err, "invalid JSON body")
	}
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			args[k] = v
		case json.Number:
			args[k] = v.String()
		case bool:
			args[k] = strconv.FormatBool(v)
		default:
			return nil, errs.New(errs.Validation, "'%s' must be a string, number or boolean", k)
		}
	}
	return args, nil
}

// ListModules godoc
// @Summary List modules
// @Description Returns module -> function -> parameter -> type for every reachable module
// @Tags modules
// @Produce json
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_modules/list [get]
func (h *Handler) ListModules(c *gin.Context) {
	c.JSON(http.StatusOK, dispatch.Success(h.deps.Calls.Catalog()))
}
