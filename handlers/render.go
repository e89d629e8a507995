package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"calendar/i18n"

	"github.com/gorilla/csrf"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"login.html", "signup.html", "calendar.html"}

// Renderer draws the HTML pages. The handlers only pick the page, the
// status and the page specific data.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any)
}

// TemplateRenderer renders the embedded templates inside the shared layout,
// translated to the language the browser asks for.
type TemplateRenderer struct {
	appName   string
	catalog   *i18n.Catalog
	templates map[string]*template.Template
}

func NewTemplateRenderer(appName string, catalog *i18n.Catalog) (*TemplateRenderer, error) {
	tr := &TemplateRenderer{
		appName:   appName,
		catalog:   catalog,
		templates: make(map[string]*template.Template),
	}
	// T is rebound per request to the detected language
	funcMap := template.FuncMap{"T": func(key string) string { return key }}
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		tr.templates[page] = tmpl
	}
	return tr, nil
}

func (tr *TemplateRenderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	logger := zerolog.Ctx(r.Context())

	base, ok := tr.templates[page]
	if !ok {
		logger.Error().Str("page", page).Msg("unknown page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	lang := tr.catalog.DetectLanguage(r)
	tmpl, err := base.Clone()
	if err != nil {
		logger.Error().Err(err).Str("page", page).Msg("failed to clone template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tmpl.Funcs(template.FuncMap{"T": func(key string) string { return tr.catalog.T(lang, key) }})

	if data == nil {
		data = map[string]any{}
	}
	data["AppName"] = tr.appName
	data["Lang"] = lang
	data["csrfField"] = csrf.TemplateField(r)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error().Err(err).Str("page", page).Msg("failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
