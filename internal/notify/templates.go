package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/bookfinder/apiserver/internal/storage"
)

const (
	TemplateWelcome = "welcome"
	TemplateOTP     = "otp"

	// templatePrefix is the object key prefix of overrides in the bucket.
	templatePrefix = "templates/"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

type WelcomeData struct {
	Username string
	Email    string
	Role     string
}

type OTPData struct {
	Username         string
	OTP              string
	ExpiresInMinutes int
}

// Templates renders emails. Each template defines a "subject" and a "body".
// A copy in object storage under templates/<name>.tmpl overrides the
// embedded default.
type Templates struct {
	store  storage.ObjectStorage
	logger logging.Logger
}

// NewTemplates uses embedded defaults only when store is nil.
func NewTemplates(store storage.ObjectStorage, logger logging.Logger) *Templates {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Templates{store: store, logger: logger.With("component", "templates")}
}

// Render executes the named template and returns the subject and body.
func (t *Templates) Render(ctx context.Context, name string, data any) (string, string, error) {
	src, err := t.source(ctx, name)
	if err != nil {
		return "", "", err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return "", "", fmt.Errorf("parse template %s: %w", name, err)
	}

	subject, err := execute(tmpl, "subject", data)
	if err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	body, err := execute(tmpl, "body", data)
	if err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return subject, body, nil
}

func (t *Templates) source(ctx context.Context, name string) ([]byte, error) {
	if t.store != nil {
		src, err := storage.ReadAll(ctx, t.store, templateKey(name))
		switch {
		case err == nil:
			return src, nil
		case errors.Is(err, storage.ErrObjectNotFound):
		default:
			t.logger.Warn(ctx, "template fetch failed, using default", "template", name, "error", err)
		}
	}
	src, err := fs.ReadFile(defaultTemplates, path.Join("templates", name+".tmpl"))
	if err != nil {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	return src, nil
}

// UploadDefaults copies every embedded template into store and returns the keys written.
func UploadDefaults(ctx context.Context, store storage.ObjectStorage) ([]string, error) {
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", store.Bucket(), err)
	}

	entries, err := fs.ReadDir(defaultTemplates, "templates")
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		src, err := fs.ReadFile(defaultTemplates, path.Join("templates", entry.Name()))
		if err != nil {
			return keys, err
		}
		key := templatePrefix + entry.Name()
		if err := store.Put(ctx, key, bytes.NewReader(src), int64(len(src)), "text/plain; charset=utf-8"); err != nil {
			return keys, fmt.Errorf("upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func templateKey(name string) string {
	return templatePrefix + name + ".tmpl"
}

func execute(tmpl *template.Template, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
