package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
)

// Headers copied into the parameter map for signature checks.
var signatureHeaders = []string{"x-signature", "x-request-id"}

const maxBodyBytes = 1 << 20

// requestParams merges query, form or JSON body fields and the signature
// headers into one flat map. Nested JSON keys are joined with ".", so
// {"data":{"id":1}} becomes data.id=1. Body fields win over query fields.
func requestParams(c *gin.Context) (domain.Params, error) {
	params := domain.Params{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	if c.Request.Method != http.MethodGet && c.Request.Body != nil {
		switch c.ContentType() {
		case binding.MIMEJSON:
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			if len(bytes.TrimSpace(body)) > 0 {
				dec := json.NewDecoder(bytes.NewReader(body))
				dec.UseNumber()
				var payload map[string]any
				if err := dec.Decode(&payload); err != nil {
					return nil, fmt.Errorf("decode json body: %w", err)
				}
				flatten("", payload, params)
			}
		case binding.MIMEMultipartPOSTForm:
			if err := c.Request.ParseMultipartForm(maxBodyBytes); err != nil {
				return nil, fmt.Errorf("parse form: %w", err)
			}
			copyForm(c, params)
		default:
			if err := c.Request.ParseForm(); err != nil {
				return nil, fmt.Errorf("parse form: %w", err)
			}
			copyForm(c, params)
		}
	}

	for _, h := range signatureHeaders {
		if v := c.GetHeader(h); v != "" {
			params[h] = v
		}
	}
	return params, nil
}

func copyForm(c *gin.Context, params domain.Params) {
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
}

func flatten(prefix string, in map[string]any, out domain.Params) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			out[key] = strconv.FormatBool(val)
		case nil:
			out[key] = ""
		default:
			raw, _ := json.Marshal(val)
			out[key] = string(raw)
		}
	}
}
