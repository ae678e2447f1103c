// Package catalog implements the Iceberg REST Catalog HTTP surface,
// delegating every operation to internal/catalog/service. Routing
// registers one common.Route per top-level path prefix and HTTP method;
// each handler parses the remaining path itself, since http.ServeMux
// only subtree-matches on a route's literal registered path.
package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/icebergrest/catalog/internal/api/v1/common"
	"github.com/icebergrest/catalog/internal/catalog/catalogerr"
	"github.com/icebergrest/catalog/internal/catalog/model"
	"github.com/icebergrest/catalog/internal/catalog/service"
	"github.com/icebergrest/catalog/internal/config"
)

// Handler implements the Iceberg REST Catalog surface.
type Handler struct {
	svc *service.Service
	cfg *config.Config
}

// NewHandler constructs the catalog HTTP handler.
func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

func (h *Handler) Routes() []common.Route {
	return []common.Route{
		{Path: "/v1/config", Method: http.MethodGet, Handler: h.getConfig},

		{Path: "/v1/namespaces", Method: http.MethodGet, Handler: h.handleNamespacesGet},
		{Path: "/v1/namespaces", Method: http.MethodHead, Handler: h.handleNamespacesHead},
		{Path: "/v1/namespaces", Method: http.MethodPost, Handler: h.handleNamespacesPost},
		{Path: "/v1/namespaces", Method: http.MethodDelete, Handler: h.handleNamespacesDelete},

		{Path: "/v1/tables/rename", Method: http.MethodPost, Handler: h.renameTable},
	}
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]any{
		"defaults":  map[string]string{},
		"overrides": map[string]string{},
	})
}

// namespace path segments are always one URL segment, dot-joined.
func decodeNamespace(segment string) []string {
	if segment == "" {
		return nil
	}
	return strings.Split(segment, ".")
}

func pathSegments(prefix, path string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// --- GET dispatch ---

func (h *Handler) handleNamespacesGet(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/v1/namespaces", r.URL.Path)
	ctx := r.Context()

	switch len(segs) {
	case 0:
		var parent []string
		if p := r.URL.Query().Get("parent"); p != "" {
			parent = decodeNamespace(p)
		}
		namespaces, err := h.svc.ListNamespaces(ctx, parent)
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, listNamespacesResponse{Namespaces: namespaces})

	case 1:
		ns := decodeNamespace(segs[0])
		props, err := h.svc.GetNamespace(ctx, ns)
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, namespaceResponse{Namespace: ns, Properties: props})

	case 2:
		if segs[1] != "tables" {
			common.RespondCatalogError(w, catalogerr.NewNotFound("unknown resource: %s", r.URL.Path))
			return
		}
		ns := decodeNamespace(segs[0])
		names, err := h.svc.ListTables(ctx, ns)
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		identifiers := make([]tableIdentifierDTO, 0, len(names))
		for _, name := range names {
			identifiers = append(identifiers, tableIdentifierDTO{Namespace: ns, Name: name})
		}
		common.RespondJSON(w, http.StatusOK, listTablesResponse{Identifiers: identifiers})

	case 3:
		ns := decodeNamespace(segs[0])
		if segs[1] != "tables" {
			common.RespondCatalogError(w, catalogerr.NewNotFound("unknown resource: %s", r.URL.Path))
			return
		}
		name := segs[2]
		snapshotRef := r.URL.Query().Get("snapshot-ref")
		result, err := h.svc.LoadTable(ctx, ns, name, snapshotRef)
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, loadTableResponse{
			MetadataLocation: result.MetadataLocation,
			Metadata:         result.Metadata,
		})

	default:
		common.RespondCatalogError(w, catalogerr.NewNotFound("unknown resource: %s", r.URL.Path))
	}
}

func (h *Handler) handleNamespacesHead(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/v1/namespaces", r.URL.Path)
	ctx := r.Context()

	switch len(segs) {
	case 1:
		ns := decodeNamespace(segs[0])
		exists, err := h.svc.NamespaceExists(ctx, ns)
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case 3:
		if segs[1] != "tables" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ns := decodeNamespace(segs[0])
		exists, err := h.svc.TableExists(ctx, ns, segs[2])
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// --- POST dispatch ---

func (h *Handler) handleNamespacesPost(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/v1/namespaces", r.URL.Path)
	ctx := r.Context()

	switch {
	case len(segs) == 0:
		var req createNamespaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondCatalogError(w, catalogerr.NewBadRequest("decoding request body: %v", err))
			return
		}
		if err := h.svc.CreateNamespace(ctx, req.Namespace, req.Properties); err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, namespaceResponse{Namespace: req.Namespace, Properties: req.Properties})

	case len(segs) == 2 && segs[1] == "properties":
		ns := decodeNamespace(segs[0])
		var req updateNamespacePropertiesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondCatalogError(w, catalogerr.NewBadRequest("decoding request body: %v", err))
			return
		}
		result, err := h.svc.UpdateNamespaceProperties(ctx, ns, req.Updates, req.Removals)
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, updateNamespacePropertiesResponse{
			Updated: result.Updated, Removed: result.Removed, Missing: result.Missing,
		})

	case len(segs) == 2 && segs[1] == "tables":
		ns := decodeNamespace(segs[0])
		var req createTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondCatalogError(w, catalogerr.NewBadRequest("decoding request body: %v", err))
			return
		}
		result, err := h.svc.CreateTable(ctx, ns, service.CreateTableRequest{
			Name:          req.Name,
			Location:      req.Location,
			Schema:        req.Schema,
			PartitionSpec: req.PartitionSpec,
			SortOrder:     req.WriteOrder,
			Properties:    req.Properties,
			StageCreate:   req.StageCreate,
		})
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, loadTableResponse{
			MetadataLocation: result.MetadataLocation,
			Metadata:         result.Metadata,
			Config:           result.Config,
		})

	case len(segs) == 3 && segs[1] == "tables" && segs[2] == "register":
		ns := decodeNamespace(segs[0])
		var req registerTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondCatalogError(w, catalogerr.NewBadRequest("decoding request body: %v", err))
			return
		}
		result, err := h.svc.RegisterTable(ctx, ns, service.RegisterTableRequest{
			Name:             req.Name,
			MetadataLocation: req.MetadataLocation,
		})
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, loadTableResponse{
			MetadataLocation: result.MetadataLocation,
			Metadata:         result.Metadata,
		})

	case len(segs) == 3 && segs[1] == "tables":
		ns := decodeNamespace(segs[0])
		name := segs[2]
		var req commitTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondCatalogError(w, catalogerr.NewBadRequest("decoding request body: %v", err))
			return
		}
		var identifier *service.TableIdentifier
		if req.Identifier != nil {
			identifier = &service.TableIdentifier{Namespace: req.Identifier.Namespace, Name: req.Identifier.Name}
		}
		result, err := h.svc.CommitTable(ctx, ns, name, service.CommitTableRequest{
			Identifier:   identifier,
			Requirements: req.Requirements,
			Updates:      req.Updates,
		})
		if err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, loadTableResponse{
			MetadataLocation: result.MetadataLocation,
			Metadata:         result.Metadata,
		})

	default:
		common.RespondCatalogError(w, catalogerr.NewNotFound("unknown resource: %s", r.URL.Path))
	}
}

func (h *Handler) renameTable(w http.ResponseWriter, r *http.Request) {
	var req renameTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondCatalogError(w, catalogerr.NewBadRequest("decoding request body: %v", err))
		return
	}
	err := h.svc.RenameTable(r.Context(),
		service.TableIdentifier{Namespace: req.Source.Namespace, Name: req.Source.Name},
		service.TableIdentifier{Namespace: req.Destination.Namespace, Name: req.Destination.Name},
	)
	if err != nil {
		common.RespondCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- DELETE dispatch ---

func (h *Handler) handleNamespacesDelete(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments("/v1/namespaces", r.URL.Path)
	ctx := r.Context()

	switch {
	case len(segs) == 1:
		ns := decodeNamespace(segs[0])
		if err := h.svc.DropNamespace(ctx, ns); err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(segs) == 3 && segs[1] == "tables":
		ns := decodeNamespace(segs[0])
		name := segs[2]
		purge, _ := strconv.ParseBool(r.URL.Query().Get("purge"))
		if err := h.svc.DropTable(ctx, ns, name, purge); err != nil {
			common.RespondCatalogError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		common.RespondCatalogError(w, catalogerr.NewNotFound("unknown resource: %s", r.URL.Path))
	}
}

// --- wire DTOs (dashed JSON field names per the Iceberg REST spec) ---

type tableIdentifierDTO struct {
	Namespace []string `json:"namespace"`
	Name      string   `json:"name"`
}

type namespaceResponse struct {
	Namespace  []string          `json:"namespace"`
	Properties map[string]string `json:"properties,omitempty"`
}

type listNamespacesResponse struct {
	Namespaces [][]string `json:"namespaces"`
}

type listTablesResponse struct {
	Identifiers []tableIdentifierDTO `json:"identifiers"`
}

type createNamespaceRequest struct {
	Namespace  []string          `json:"namespace"`
	Properties map[string]string `json:"properties,omitempty"`
}

type updateNamespacePropertiesRequest struct {
	Removals []string          `json:"removals,omitempty"`
	Updates  map[string]string `json:"updates,omitempty"`
}

type updateNamespacePropertiesResponse struct {
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
	Missing []string `json:"missing,omitempty"`
}

type createTableRequest struct {
	Name          string               `json:"name"`
	Location      string               `json:"location,omitempty"`
	Schema        model.Schema         `json:"schema"`
	PartitionSpec *model.PartitionSpec `json:"partition-spec,omitempty"`
	WriteOrder    *model.SortOrder     `json:"write-order,omitempty"`
	Properties    map[string]string    `json:"properties,omitempty"`
	StageCreate   bool                 `json:"stage-create,omitempty"`
}

type registerTableRequest struct {
	Name             string `json:"name,omitempty"`
	MetadataLocation string `json:"metadata-location"`
}

type commitTableRequest struct {
	Identifier   *tableIdentifierDTO     `json:"identifier,omitempty"`
	Requirements []model.TableRequirement `json:"requirements"`
	Updates      []model.TableUpdate     `json:"updates"`
}

type renameTableRequest struct {
	Source      tableIdentifierDTO `json:"source"`
	Destination tableIdentifierDTO `json:"destination"`
}

type loadTableResponse struct {
	MetadataLocation string               `json:"metadata-location,omitempty"`
	Metadata         *model.TableMetadata `json:"metadata"`
	Config           map[string]string    `json:"config,omitempty"`
}
