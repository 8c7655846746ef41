package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxsorter/internal/classifier"
	"github.com/teemow/inboxsorter/internal/gmail"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// countOptions are offered by the dashboard selector.
var countOptions = []int{5, 10, 15, 20}

// classifyConcurrency bounds parallel LLM calls per dashboard request.
const classifyConcurrency = 4

var signInMessages = map[string]string{
	signInDenied:  "Google sign-in was cancelled.",
	signInFailed:  "Sign-in failed. Please try again.",
	signInExpired: "Your session has expired. Please sign in again.",
}

type pages struct {
	home      *template.Template
	dashboard *template.Template
}

func loadPages() (*pages, error) {
	funcs := template.FuncMap{
		"categoryClass": func(c classifier.Category) string {
			return "cat-" + strings.ToLower(string(c))
		},
	}
	parse := func(page string) (*template.Template, error) {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		return t, nil
	}

	home, err := parse("home.html")
	if err != nil {
		return nil, err
	}
	dashboard, err := parse("dashboard.html")
	if err != nil {
		return nil, err
	}
	return &pages{home: home, dashboard: dashboard}, nil
}

// render executes t into a buffer first so a template error never leaves
// a half-written page.
func (s *Server) render(w http.ResponseWriter, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("failed to render page", logging.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

type homeView struct {
	Error     string
	HasAPIKey bool
	Saved     bool
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.opts.Store.Load(r); err == nil && sess.Token.Usable() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	s.render(w, s.pages.home, homeView{
		Error:     signInMessages[r.URL.Query().Get("error")],
		HasAPIKey: s.opts.Store.LoadAPIKey(r) != "",
		Saved:     r.URL.Query().Get("saved") == "1",
	})
}

// handleSaveAPIKey stores the submitted OpenAI key; an empty key removes
// the stored one.
func (s *Server) handleSaveAPIKey(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	key := strings.TrimSpace(r.PostForm.Get("openai_key"))
	if key == "" {
		s.opts.Store.ClearAPIKey(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := s.opts.Store.SaveAPIKey(w, key); err != nil {
		s.logger.Error("failed to store API key", logging.Err(err))
		http.Error(w, "failed to store API key", http.StatusInternalServerError)
		return
	}

	target := "/?saved=1"
	if sess, err := s.opts.Store.Load(r); err == nil && sess.Token.Usable() {
		target = "/dashboard"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type emailView struct {
	gmail.MessageSummary
	Classification *classifier.Classification
}

type dashboardView struct {
	Name         string
	Email        string
	Count        int
	CountOptions []int
	Emails       []emailView
	Selected     *gmail.MessageDetail
	Notice       string
	Error        string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := session.FromContext(ctx)
	query := r.URL.Query()

	view := dashboardView{
		Name:         sess.Name,
		Email:        sess.Email,
		Count:        parseCount(query.Get("count")),
		CountOptions: countOptions,
	}

	fetcher, err := s.opts.Fetchers(ctx, sess.Token.AccessToken)
	var list []gmail.MessageSummary
	if err == nil {
		list, err = fetcher.List(ctx, view.Count)
	}
	switch {
	case gmail.IsUnauthenticated(err):
		s.logger.Info("Gmail rejected the access token, signing out", logging.UserHash(sess.Email))
		s.opts.Store.Clear(w)
		redirectHome(w, r, signInExpired)
		return
	case err != nil:
		s.logger.Warn("failed to fetch inbox, trying cache", logging.UserHash(sess.Email), logging.Err(err))
		if cached, ok := s.opts.Lists.Load(ctx, sess.Email); ok {
			list = cached
			view.Notice = "Gmail is unavailable. Showing the last emails fetched."
		} else {
			view.Error = "Failed to fetch Gmail emails."
		}
	default:
		s.opts.Lists.Store(ctx, sess.Email, list)
	}

	view.Emails = make([]emailView, len(list))
	for i, m := range list {
		view.Emails[i] = emailView{MessageSummary: m}
	}

	if id := query.Get("id"); id != "" {
		view.Selected = s.selectEmail(ctx, fetcher, id, list)
	}

	if query.Get("classify") == "1" {
		s.classifyAll(ctx, view.Emails, s.opts.Store.LoadAPIKey(r))
	}

	s.render(w, s.pages.dashboard, view)
}

// selectEmail fetches the full message and falls back to the list entry,
// or nil when id is not listed either.
func (s *Server) selectEmail(ctx context.Context, fetcher Fetcher, id string, list []gmail.MessageSummary) *gmail.MessageDetail {
	if fetcher != nil {
		detail, err := fetcher.Get(ctx, id)
		if err == nil {
			return &detail
		}
		s.logger.Warn("failed to fetch email, using list entry", logging.MessageID(id), logging.Err(err))
	}

	for _, m := range list {
		if m.ID == id {
			return &gmail.MessageDetail{ID: m.ID, Sender: m.Sender, Subject: m.Subject, Content: m.Snippet}
		}
	}
	return nil
}

// classifyAll labels every email in place.
func (s *Server) classifyAll(ctx context.Context, emails []emailView, apiKey string) {
	var g errgroup.Group
	g.SetLimit(classifyConcurrency)

	for i := range emails {
		g.Go(func() error {
			content := emails[i].Snippet
			if content == "" {
				content = emails[i].Subject
			}
			c := s.opts.Classifier.Classify(ctx, content, apiKey)
			emails[i].Classification = &c
			return nil
		})
	}
	_ = g.Wait()
}

// parseCount reads the requested list size: absent or malformed selects
// the default, anything else is clamped into [1, gmail.MaxListCount].
func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return gmail.DefaultListCount
	}
	if n < 1 {
		return 1
	}
	return gmail.ClampCount(n)
}
