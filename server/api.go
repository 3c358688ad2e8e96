package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	open := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// We create a unique rate limiter for each endpoint, keyed by IP
	ratelimited := func(method, route string, handle httprouter.Handle) {
		if s.config.RateLimit <= 0 {
			open(method, route, handle)
			return
		}
		limited := httprate.Limit(s.config.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	open("GET", "/api/ping", s.httpPing)
	open("GET", "/api/vocabulary", s.httpVocabulary)
	open("GET", "/api/achievements", s.httpAchievements)
	ratelimited("POST", "/api/assess", s.httpAssess)
	ratelimited("POST", "/api/annotate", s.httpAnnotate)
	ratelimited("GET", "/api/stream", s.httpStream)
	open("GET", "/api/frames/*name", s.httpFrame)

	s.httpRouter = router
	return nil
}
