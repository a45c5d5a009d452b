// Package rpc is the thin HTTP façade over the Ledger's bus for the
// client-facing RPC surface spec.md §6 requires
// (getBlockInfo/getLatestBlockInfo/findInTable/findOneInTable/getContract).
// It carries no business logic of its own — every handler is a direct
// call into bus.Bus — and is guarded by a bearer JWT the way the
// teacher's own rpc_server.go gates node-to-fairnode calls, reimplemented
// here over HTTP/JSON with httprouter+rs/cors instead of the teacher's
// gRPC transport, since spec.md §6 specifies plain RPC/JSON, not protobuf.
package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/fairledger/sidechain/bus"
	"github.com/fairledger/sidechain/core/store"
)

var logger = log.New("module", "rpc")

// Server exposes bus.Bus over HTTP+JSON.
type Server struct {
	bus       bus.Bus
	jwtSecret []byte
	handler   http.Handler
}

// New builds a Server. jwtSecret validates the bearer tokens
// required on every request; pass nil to disable auth (useful for
// local/test RPC servers that never face the network).
func New(b bus.Bus, jwtSecret []byte) *Server {
	s := &Server{bus: b, jwtSecret: jwtSecret}

	router := httprouter.New()
	router.GET("/block/:number", s.withAuth(s.getBlockInfo))
	router.POST("/table/find", s.withAuth(s.findInTable))
	router.POST("/table/findOne", s.withAuth(s.findOneInTable))
	router.GET("/contract/:name", s.withAuth(s.getContract))

	s.handler = cors.Default().Handler(router)
	return s
}

// ServeHTTP satisfies http.Handler, letting a Server be mounted directly
// on an http.Server or nested under another router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) withAuth(next httprouter.Handle) httprouter.Handle {
	if s.jwtSecret == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next(w, r, p)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// getBlockInfo implements spec.md §6's getBlockInfo(n). GET /block/latest
// shares this route (httprouter cannot register a static segment beside
// ":number") and is answered by getLatestBlockInfo.
func (s *Server) getBlockInfo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if p.ByName("number") == "latest" {
		s.getLatestBlockInfo(w, r, p)
		return
	}
	n, err := strconv.ParseUint(p.ByName("number"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block number")
		return
	}
	block, ok, err := s.bus.GetBlock(n)
	if err != nil {
		logger.Error("getBlockInfo", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// getLatestBlockInfo implements spec.md §6's getLatestBlockInfo().
func (s *Server) getLatestBlockInfo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	block, ok, err := s.bus.GetLatestBlock()
	if err != nil {
		logger.Error("getLatestBlockInfo", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "chain empty")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

type tableQuery struct {
	Contract string         `json:"contract"`
	Table    string         `json:"table"`
	Query    store.Document `json:"query"`
}

// findInTable implements spec.md §6's findInTable(c,t,q).
func (s *Server) findInTable(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var q tableQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	docs, err := s.bus.FindInTable(q.Contract, q.Table, q.Query)
	if err != nil {
		logger.Error("findInTable", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// findOneInTable implements spec.md §6's findOneInTable(c,t,q).
func (s *Server) findOneInTable(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var q tableQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, ok, err := s.bus.FindOneInTable(q.Contract, q.Table, q.Query)
	if err != nil {
		logger.Error("findOneInTable", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// getContract implements spec.md §6's getContract(name).
func (s *Server) getContract(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	contract, ok, err := s.bus.GetContract(p.ByName("name"))
	if err != nil {
		logger.Error("getContract", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	writeJSON(w, http.StatusOK, contract)
}
