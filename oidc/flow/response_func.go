// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/go-hclog"
)

// SuccessResponseFunc is used by the Flow to create a http response when a
// login or silent token acquisition is successful.
//
// The successRedirect is the local path the user asked to return to.  The
// oidc.Token is the result of the token request.  The default implementation
// redirects to the successRedirect.
type SuccessResponseFunc func(successRedirect string, t *oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by the Flow to create a http response when one of
// its handlers fails.
//
// The function receives the state returned as part of an oidc authentication
// response, if any.  It also gets the oidc authentication error response
// and/or the error raised while processing the request.  The function should
// use the http.ResponseWriter to send back whatever content (headers, html,
// JSON, etc) it wishes to the client.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// errorBody is the JSON written by DefaultErrorResponse.
type errorBody struct {
	Status  int                  `json:"status"`
	Message string               `json:"message"`
	AuthErr *AuthenErrorResponse `json:"authError,omitempty"`
}

// ErrorStatus returns the http status code for a flow error:
//   - a protocol error is the client's fault (400)
//   - a failed login, or one which requires interaction, is 401
//   - everything else is an internal error (500)
func ErrorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case oidc.IsProtocolError(err):
		return http.StatusBadRequest
	case oidc.IsInteractionRequired(err), errors.Is(err, oidc.ErrLoginFailed):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// DefaultErrorResponse returns an ErrorResponseFunc which writes a JSON error.
// Internal errors are logged and never written to the client.
func DefaultErrorResponse(logger hclog.Logger) ErrorResponseFunc {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		status := ErrorStatus(e)
		if respErr != nil {
			status = http.StatusUnauthorized
		}
		body := errorBody{
			Status:  status,
			Message: http.StatusText(status),
			AuthErr: respErr,
		}
		switch status {
		case http.StatusInternalServerError:
			logger.Error("request failed", "path", req.URL.Path, "error", e)
		default:
			logger.Debug("request rejected", "path", req.URL.Path, "status", status, "error", e)
			if e != nil {
				body.Message = e.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(&body)
	}
}
