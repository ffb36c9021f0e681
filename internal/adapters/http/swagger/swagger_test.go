package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given a swagger handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		convey.Convey("When registering the swagger handler", func() {
			Register(ctx, mux)

			convey.Convey("Then it should handle /openapi.yaml route", func() {
				req := httptest.NewRequest("GET", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.Len(), convey.ShouldBeGreaterThan, 0)
			})

			convey.Convey("And it should handle /api-docs route", func() {
				req := httptest.NewRequest("GET", "/api-docs", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "Arena API Docs")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, RedocScript)
			})

			convey.Convey("And it should reject other methods", func() {
				req := httptest.NewRequest("POST", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		convey.Convey("When registering on a nil mux", func() {
			convey.So(func() { Register(ctx, nil) }, convey.ShouldPanic)
		})
	})
}

func TestOpenAPIDocument(t *testing.T) {
	convey.Convey("Given the embedded OpenAPI document", t, func() {
		var doc struct {
			OpenAPI string                    `yaml:"openapi"`
			Paths   map[string]map[string]any `yaml:"paths"`
		}
		convey.So(yaml.Unmarshal(OpenAPI, &doc), convey.ShouldBeNil)

		convey.Convey("It documents every route", func() {
			convey.So(doc.OpenAPI, convey.ShouldStartWith, "3.")
			for _, route := range []struct{ path, method string }{
				{"/healthz", "get"},
				{"/stats", "get"},
				{"/api/v1/scores", "post"},
				{"/api/v1/scores/bulk", "post"},
				{"/api/v1/scores/{id}", "delete"},
				{"/api/v1/scores/{id}/edits", "get"},
				{"/api/v1/mirror/inbound", "post"},
				{"/api/v1/competitions/{c}/rankings", "get"},
				{"/api/v1/competitions/{c}/rankings/recalculate", "post"},
				{"/api/v1/competitions/{c}/participants/{p}/scorecard", "get"},
				{"/api/v1/competitions/{c}/participants/{p}/comparison", "get"},
				{"/api/v1/judges/{j}/statistics", "get"},
				{"/api/v1/competitions/{c}/sync-status", "get"},
				{"/api/v1/competitions/{c}/force-sync", "post"},
				{"/ws/rankings/{c}", "get"},
				{"/ws/scores/{c}/{p}", "get"},
			} {
				convey.So(doc.Paths, convey.ShouldContainKey, route.path)
				convey.So(doc.Paths[route.path], convey.ShouldContainKey, route.method)
			}
		})
	})
}
