package fixture

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/livefir/blogpage"
	"github.com/livefir/blogpage/internal/query"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	postsPath = "/posts"
	loginPath = "/login"
)

// Site renders the demo blog's pages and accepts the form posts they make
type Site struct {
	blog   *Blog
	tmpl   *template.Template
	logger zerolog.Logger
}

type pageData struct {
	Title      string
	BlogTitle  string
	ClientPath string

	// posts listing
	Sizes   []int
	Posts   []Post
	Page    int
	Pages   int
	PrevURL string
	NextURL string

	// post view
	Post Post
	Base string
}

// NewSite parses the page templates
func NewSite(blog *Blog, logger zerolog.Logger) (*Site, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Site{blog: blog, tmpl: tmpl, logger: logger}, nil
}

// Render writes the page at loc. Unknown paths return blogpage.ErrPageNotFound.
func (s *Site) Render(w io.Writer, loc query.Location) error {
	data := pageData{
		BlogTitle:  s.blog.Title,
		ClientPath: blogpage.ClientLibraryPath,
	}

	switch {
	case loc.Path == "/" || loc.Path == postsPath:
		s.fillListing(&data, loc)
		return s.tmpl.ExecuteTemplate(w, "posts", data)
	case loc.Path == loginPath:
		data.Title = "Log in"
		return s.tmpl.ExecuteTemplate(w, "login", data)
	}

	id, ok := postIDFromView(loc.Path)
	if !ok {
		return blogpage.ErrPageNotFound
	}
	post, ok := s.blog.Post(id)
	if !ok {
		return blogpage.ErrPageNotFound
	}

	data.Title = post.Title
	data.Post = post
	data.Base = loc.BasePath()
	return s.tmpl.ExecuteTemplate(w, "post", data)
}

// fillListing selects the posts for the size and page in the query
func (s *Site) fillListing(data *pageData, loc query.Location) {
	params := query.ParseParams(loc.RawQuery)

	size := query.PageSizes[0]
	if v, ok := params.Get(query.SizeKey); ok {
		if n, err := strconv.Atoi(v); err == nil && query.ValidPageSize(n) {
			size = n
		}
	}

	pages := max((len(s.blog.Posts)+size-1)/size, 1)
	page := 1
	if v, ok := params.Get("page"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			page = min(max(n, 1), pages)
		}
	}

	start := (page - 1) * size
	end := min(start+size, len(s.blog.Posts))

	data.Title = s.blog.Title
	data.Sizes = query.PageSizes
	data.Posts = s.blog.Posts[start:end]
	data.Page = page
	data.Pages = pages
	if page > 1 {
		data.PrevURL = pageURL(loc.Path, params, page-1)
	}
	if page < pages {
		data.NextURL = pageURL(loc.Path, params, page+1)
	}
}

func pageURL(path string, params query.Params, page int) string {
	return path + "?" + query.Merge(params, map[string]string{"page": strconv.Itoa(page)}).Encode()
}

// postIDFromView extracts id from /posts/<id>/view
func postIDFromView(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, postsPath+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(strings.TrimSuffix(rest, "/"), "/view")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Register mounts live on the page routes and adds the routes the pages post to.
// Submissions are logged and redirected back; nothing is stored.
func (s *Site) Register(mux *http.ServeMux, live http.Handler) {
	mux.Handle("/{$}", live)
	mux.Handle(postsPath, live)
	mux.Handle(loginPath, live)
	mux.Handle("/posts/{id}/view", live)

	mux.HandleFunc("POST /posts/{id}/comments", s.handleReply)
	mux.HandleFunc("POST /posts/{id}/comments/{comment}/edit", s.handleEdit)
	mux.HandleFunc("GET /posts/{id}/comments/{comment}/delete", s.handleDelete)
	mux.HandleFunc("POST /session", s.handleLogin)
}

func (s *Site) handleReply(w http.ResponseWriter, r *http.Request) {
	post, ok := s.postFor(w, r)
	if !ok {
		return
	}
	s.logger.Info().
		Str("post", post.ID).
		Str("parent_comment_id", r.PostFormValue("parent_comment_id")).
		Int("length", len(r.PostFormValue("contents"))).
		Msg("comment submitted")
	http.Redirect(w, r, viewPath(post.ID), http.StatusSeeOther)
}

func (s *Site) handleEdit(w http.ResponseWriter, r *http.Request) {
	post, ok := s.postFor(w, r)
	if !ok {
		return
	}
	s.logger.Info().
		Str("post", post.ID).
		Str("comment", r.PathValue("comment")).
		Int("length", len(r.PostFormValue("contents"))).
		Msg("comment edit submitted")
	http.Redirect(w, r, viewPath(post.ID), http.StatusSeeOther)
}

func (s *Site) handleDelete(w http.ResponseWriter, r *http.Request) {
	post, ok := s.postFor(w, r)
	if !ok {
		return
	}
	s.logger.Info().
		Str("post", post.ID).
		Str("comment", r.PathValue("comment")).
		Msg("comment delete requested")
	http.Redirect(w, r, viewPath(post.ID), http.StatusSeeOther)
}

func (s *Site) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Str("username", r.PostFormValue("username")).Msg("login submitted")
	http.Redirect(w, r, postsPath, http.StatusSeeOther)
}

func (s *Site) postFor(w http.ResponseWriter, r *http.Request) (Post, bool) {
	post, ok := s.blog.Post(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return Post{}, false
	}
	return post, true
}

func viewPath(id string) string {
	return postsPath + "/" + id + "/view"
}
