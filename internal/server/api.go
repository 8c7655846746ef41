package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teemow/inboxsorter/internal/gmail"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/session"
)

// apiSummary is a list entry as served by /api/gmail. Content repeats the
// snippet for clients written against the older field name.
type apiSummary struct {
	gmail.MessageSummary
	Content string `json:"content"`
}

type listResponse struct {
	Emails []apiSummary `json:"emails"`
}

type detailResponse struct {
	Email gmail.MessageDetail `json:"email"`
}

type classifyRequest struct {
	Content   string `json:"content"`
	OpenAIKey string `json:"openaiKey"`
}

func (s *Server) handleAPIGmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := session.FromContext(ctx)
	query := r.URL.Query()

	fetcher, err := s.opts.Fetchers(ctx, sess.Token.AccessToken)
	if err != nil {
		s.logger.Error("failed to create Gmail fetcher", logging.Err(err))
		writeJSONError(w, http.StatusBadGateway, errListMessages, err.Error())
		return
	}

	if id := query.Get("id"); id != "" {
		detail, err := fetcher.Get(ctx, id)
		if err != nil {
			s.writeFetchError(w, errFetchMessage, err)
			return
		}
		writeJSON(w, http.StatusOK, detailResponse{Email: detail})
		return
	}

	list, err := fetcher.List(ctx, parseCount(query.Get("count")))
	if err != nil {
		s.writeFetchError(w, errListMessages, err)
		return
	}
	s.opts.Lists.Store(ctx, sess.Email, list)

	resp := listResponse{Emails: make([]apiSummary, len(list))}
	for i, m := range list {
		resp.Emails[i] = apiSummary{MessageSummary: m, Content: m.Snippet}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeFetchError(w http.ResponseWriter, message string, err error) {
	if gmail.IsUnauthenticated(err) {
		writeJSONError(w, http.StatusUnauthorized, errNotAuthenticated, "")
		return
	}
	s.logger.Warn("Gmail request failed", logging.Err(err))
	writeJSONError(w, http.StatusBadGateway, message, err.Error())
}

// handleAPIClassify never fails because of the LLM: the classifier falls
// back to keywords. The key in the body wins over the stored cookie key.
func (s *Server) handleAPIClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed classify request", logging.Err(err))
		writeJSONError(w, http.StatusInternalServerError, errClassifyFailed, "")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusBadRequest, errContentRequired, "")
		return
	}

	apiKey := req.OpenAIKey
	if apiKey == "" {
		apiKey = s.opts.Store.LoadAPIKey(r)
	}

	writeJSON(w, http.StatusOK, s.opts.Classifier.Classify(r.Context(), req.Content, apiKey))
}
