package docsession

import (
	"fmt"

	"workspaceServer/backend/internal/store"
)

// NavContext 打开会话时的导航位置：在哪个 workspace / folder 下打开哪个节点。
// Kind 指明本次编辑的目标层级，三个 ID 按层级逐级填充。
type NavContext struct {
	WorkspaceID string
	FolderID    string
	FileID      string
	Kind        store.EntryKind
}

// EntryID 本次编辑目标的节点 ID
func (n NavContext) EntryID() string {
	switch n.Kind {
	case store.KindFile:
		return n.FileID
	case store.KindFolder:
		return n.FolderID
	case store.KindWorkspace:
		return n.WorkspaceID
	}
	return ""
}

// Fallback 引导失败（节点已被删除等）时退回的上一级路径
func (n NavContext) Fallback() string {
	switch n.Kind {
	case store.KindFile:
		return fmt.Sprintf("/dashboard/%s/%s", n.WorkspaceID, n.FolderID)
	case store.KindFolder:
		return fmt.Sprintf("/dashboard/%s", n.WorkspaceID)
	}
	return "/dashboard"
}

// Navigator 宿主提供的跳转能力，会话本身不关心路由如何实现
type Navigator interface {
	Replace(path string)
}
