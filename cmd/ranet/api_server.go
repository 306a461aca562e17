package main

import (
	"io"

	"github.com/galdor/go-service/pkg/shttp"
)

type APIServer struct {
	Service *Service
}

func NewAPIServer(s *Service) (*APIServer, error) {
	api := APIServer{
		Service: s,
	}

	return &api, nil
}

func (api *APIServer) Init() error {
	api.initRoutes()
	return nil
}

func (api *APIServer) initRoutes() {
	api.Route("/log", "GET", api.hLogGET)
	api.Route("/log/entries", "PUT", api.hLogEntriesPUT)
	api.Route("/debug", "POST", api.hDebugPOST)
}

func (api *APIServer) Route(pathPattern, method string, routeFunc shttp.RouteFunc) {
	s := api.Service.Service.HTTPServer("api")
	s.Route(pathPattern, method, routeFunc)
}

func (api *APIServer) hLogGET(h *shttp.Handler) {
	h.ReplyJSON(200, api.Service.store.Snapshot())
}

func (api *APIServer) hLogEntriesPUT(h *shttp.Handler) {
	item, err := io.ReadAll(h.Request.Body)
	if err != nil {
		h.ReplyJSON(500, map[string]string{
			"error": "cannot read request body",
		})
		return
	}

	if !api.Service.raftServer.Leading() {
		h.ReplyJSON(503, map[string]string{
			"error": "not the leader",
		})
		return
	}

	api.Service.raftServer.SubmitEntry(item)

	h.ReplyEmpty(202)
}

func (api *APIServer) hDebugPOST(h *shttp.Handler) {
	api.Service.raftServer.Debug()

	h.ReplyEmpty(204)
}
