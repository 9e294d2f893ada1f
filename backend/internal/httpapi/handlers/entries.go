package handlers

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"workspaceServer/backend/internal/cache"
	"workspaceServer/backend/internal/objstore"
	"workspaceServer/backend/internal/store"
)

// Handler 目录节点 CRUD + 快照 + 横幅上传的 HTTP 面。
// 三种节点（workspace/folder/file）统一按 kind 路由参数处理。
type Handler struct {
	entries  *store.EntryStore
	users    *store.UserStore
	objects  *objstore.ObjectStore
	presence cache.PresenceCache
	subs     *cache.SubscriptionStatusCache
}

func NewHandler(entries *store.EntryStore, users *store.UserStore, objects *objstore.ObjectStore, presence cache.PresenceCache, subs *cache.SubscriptionStatusCache) *Handler {
	return &Handler{entries: entries, users: users, objects: objects, presence: presence, subs: subs}
}

func parseKind(c *gin.Context) (store.EntryKind, bool) {
	kind := store.EntryKind(c.Param("kind"))
	switch kind {
	case store.KindWorkspace, store.KindFolder, store.KindFile:
		return kind, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entry kind"})
	return "", false
}

// workspace 的子节点是 folder，folder 的子节点是 file
func childKindOf(kind store.EntryKind) (store.EntryKind, bool) {
	switch kind {
	case store.KindWorkspace:
		return store.KindFolder, true
	case store.KindFolder:
		return store.KindFile, true
	}
	return "", false
}

type createEntryReq struct {
	Title    string `json:"title" binding:"required"`
	IconID   string `json:"iconId"`
	ParentID string `json:"parentId"`
}

func (h *Handler) CreateEntry(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	var req createEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	e := store.Entry{
		ID:       uuid.NewString(),
		Title:    req.Title,
		IconID:   req.IconID,
		ParentID: req.ParentID,
		OwnerID:  c.GetString("userId"),
	}
	if kind != store.KindWorkspace && req.ParentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parentId required"})
		return
	}
	if err := h.entries.CreateEntry(c.Request.Context(), kind, e); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": e.ID, "title": e.Title, "iconId": e.IconID})
}

func (h *Handler) GetEntry(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	e, err := h.entries.GetEntry(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) ListChildren(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	childKind, ok := childKindOf(kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry kind has no children"})
		return
	}
	children, err := h.entries.ListChildren(c.Request.Context(), childKind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, children)
}

func (h *Handler) ListWorkspaces(c *gin.Context) {
	workspaces, err := h.entries.ListWorkspacesByOwner(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, workspaces)
}

type updateFieldReq struct {
	Value string `json:"value"`
}

func (h *Handler) UpdateTitle(c *gin.Context) {
	h.updateField(c, h.entries.UpdateEntryTitle)
}

func (h *Handler) UpdateIcon(c *gin.Context) {
	h.updateField(c, h.entries.UpdateEntryIcon)
}

func (h *Handler) MoveToTrash(c *gin.Context) {
	h.updateField(c, h.entries.UpdateEntryTrash)
}

// Restore inTrash 置空即恢复
func (h *Handler) Restore(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if err := h.entries.UpdateEntryTrash(c.Request.Context(), kind, c.Param("id"), ""); err != nil {
		h.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (h *Handler) DeleteEntry(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if err := h.entries.DeleteEntry(c.Request.Context(), kind, c.Param("id")); err != nil {
		h.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// GetSnapshot 会话引导读的就是这里：{data, error} 形式应答
func (h *Handler) GetSnapshot(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	data, err := h.entries.GetEntrySnapshot(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"data": nil, "error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"data": nil, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "error": nil})
}

type updateSnapshotReq struct {
	Data string `json:"data" binding:"required"`
}

func (h *Handler) UpdateSnapshot(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	var req updateSnapshotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.entries.UpdateEntrySnapshot(c.Request.Context(), kind, c.Param("id"), req.Data); err != nil {
		h.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil})
}

// UploadBanner multipart 上传横幅，对象名用 uuid + 原始扩展名
func (h *Handler) UploadBanner(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("banner")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing banner file"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	object := uuid.NewString() + path.Ext(fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.objects.Upload(c.Request.Context(), objstore.BucketBanner, object, f, fileHeader.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "banner upload failed"})
		return
	}
	if err := h.entries.UpdateEntryBanner(c.Request.Context(), kind, c.Param("id"), object); err != nil {
		h.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bannerUrl": object,
		"publicUrl": h.objects.PublicURL(objstore.BucketBanner, object),
	})
}

func (h *Handler) RemoveBanner(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	e, err := h.entries.GetEntry(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		h.writeUpdateError(c, err)
		return
	}
	if e.BannerURL != "" {
		if err := h.objects.Remove(c.Request.Context(), objstore.BucketBanner, e.BannerURL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "banner remove failed"})
			return
		}
	}
	if err := h.entries.UpdateEntryBanner(c.Request.Context(), kind, c.Param("id"), ""); err != nil {
		h.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// UploadAvatar 头像上传，成功后更新用户资料
func (h *Handler) UploadAvatar(c *gin.Context) {
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing avatar file"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	object := uuid.NewString() + path.Ext(fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.objects.Upload(c.Request.Context(), objstore.BucketAvatar, object, f, fileHeader.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "avatar upload failed"})
		return
	}
	avatarURL := h.objects.PublicURL(objstore.BucketAvatar, object)
	if err := h.users.SetAvatar(c.Request.Context(), c.GetString("userId"), avatarURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatarUrl": avatarURL})
}

// ActiveRooms 当前有在线成员的文档列表（运营面板用）
func (h *Handler) ActiveRooms(c *gin.Context) {
	docs, err := h.presence.GetDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) SubscriptionStatus(c *gin.Context) {
	status, err := h.subs.Status(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// updateField title/icon/inTrash 三个单列更新共用的骨架
func (h *Handler) updateField(c *gin.Context, update func(ctx context.Context, kind store.EntryKind, id, value string) error) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	var req updateFieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := update(c.Request.Context(), kind, c.Param("id"), req.Value); err != nil {
		h.writeUpdateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (h *Handler) writeUpdateError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
