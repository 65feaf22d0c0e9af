package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/auth"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

// TaxonomyNode is the JSON form of a taxonomy node. Leaves carry a
// designation; branches carry children.
type TaxonomyNode struct {
	ID          int            `json:"id"`
	Label       string         `json:"label"`
	Designation string         `json:"designation,omitempty"`
	Children    []TaxonomyNode `json:"children,omitempty"`
}

// TaxonomyResponse is the body of GET /api/taxonomy.
type TaxonomyResponse struct {
	Categories []TaxonomyNode                `json:"categories"`
	Features   map[string][]taxonomy.Feature `json:"features"`
}

// MeResponse is the body of GET /api/me.
type MeResponse struct {
	User    models.User `json:"user"`
	IsAdmin bool        `json:"is_admin"`
}

// APIHandler serves read-only JSON endpoints for scripts and the browser.
type APIHandler struct {
	tax    *taxonomy.Taxonomy
	logger *zap.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(tax *taxonomy.Taxonomy, logger *zap.Logger) *APIHandler {
	return &APIHandler{tax: tax, logger: logger.Named("api")}
}

// RegisterRoutes registers the API routes on the given mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/taxonomy", authMiddleware.RequireSession(h.Taxonomy))
	mux.HandleFunc("GET /api/me", authMiddleware.RequireSession(h.Me))
}

// Taxonomy handles GET /api/taxonomy.
func (h *APIHandler) Taxonomy(w http.ResponseWriter, r *http.Request) {
	resp := TaxonomyResponse{
		Categories: convertNodes(h.tax.Roots()),
		Features:   make(map[string][]taxonomy.Feature),
	}
	for _, d := range h.tax.Designations() {
		if feats, ok := h.tax.Features(d); ok {
			resp.Features[d] = feats
		}
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode taxonomy", zap.Error(err))
	}
}

// Me handles GET /api/me.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := WriteJSON(w, http.StatusOK, MeResponse{User: id.User, IsAdmin: id.IsAdmin()}); err != nil {
		h.logger.Error("Failed to encode identity", zap.Error(err))
	}
}

func convertNodes(nodes []taxonomy.Node) []TaxonomyNode {
	out := make([]TaxonomyNode, 0, len(nodes))
	for _, n := range nodes {
		tn := TaxonomyNode{ID: n.NodeID(), Label: n.NodeLabel()}
		switch v := n.(type) {
		case *taxonomy.Leaf:
			tn.Designation = v.Designation
		case *taxonomy.Branch:
			tn.Children = convertNodes(v.Children)
		}
		out = append(out, tn)
	}
	return out
}
