package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type listRequest struct {
	Entity string `query:"entity" json:"entity" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"30" validate:"gte=1,lte=100"`
}

func bindQuery(t *testing.T, query string) (*listRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	var r listRequest
	return &r, ReadAndValidateRequest(c, &r)
}

func TestReadAndValidateRequest(t *testing.T) {
	r, errs := bindQuery(t, "entity=nbrb")
	if errs != nil || r.Limit != 30 {
		t.Fatalf("defaults: %+v %v", r, errs)
	}
	_, errs = bindQuery(t, "limit=500")
	if len(errs) != 2 {
		t.Fatalf("expected two errors, got %+v", errs)
	}
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	if fields["entity"] != "ERR_REQUIRED" || fields["limit"] != "ERR_LTE" {
		t.Fatalf("unexpected errors %+v", fields)
	}
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := AppErrorResponse(c, NotFoundErrorf("no forecast for %s", "nbrb")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "ERR_NOT_FOUND") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = AppErrorResponse(c, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestClientMultipartAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("photo")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if r.FormValue("chat_id") != "42" || string(data) != "PNG" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()))
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body: &MultipartBody{
			Fields: map[string]string{"chat_id": "42"},
			Files:  []FilePart{{Field: "photo", Filename: "a.png", Data: []byte("PNG")}},
		},
	}, &out)
	if err != nil || !out.OK {
		t.Fatalf("multipart: %v %+v", err, out)
	}

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: http.MethodPost, URL: srv.URL, Body: map[string]int{"a": 1}}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
}
