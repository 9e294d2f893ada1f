package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// EntryKind 目录节点的三种形态。工作区/文件夹/文件都按
// "带内容的节点"统一处理，只有所在表和父键不同。
type EntryKind string

const (
	KindWorkspace EntryKind = "workspace"
	KindFolder    EntryKind = "folder"
	KindFile      EntryKind = "file"
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrEntryExists   = errors.New("entry already exists")
	ErrUnknownKind   = errors.New("unknown entry kind")
)

// Entry 目录节点。Data 是编辑器快照的序列化全量内容。
type Entry struct {
	ID        string
	Title     string
	IconID    string
	Data      string
	InTrash   string // 非空表示在回收站，内容是放入原因/时间标记
	BannerURL string
	OwnerID   string // 仅 workspace 使用
	ParentID  string // folder -> workspace, file -> folder
	CreatedAt time.Time
}

// 表名/父键由 kind 决定，全部取自固定表，不拼接外部输入
func tableFor(kind EntryKind) (table, parentCol string, err error) {
	switch kind {
	case KindWorkspace:
		return "workspaces", "", nil
	case KindFolder:
		return "folders", "workspace_id", nil
	case KindFile:
		return "files", "folder_id", nil
	default:
		return "", "", ErrUnknownKind
	}
}

type EntryStore struct{ db *sql.DB }

func NewEntryStore(db *sql.DB) *EntryStore {
	return &EntryStore{db: db}
}

func (s *EntryStore) CreateEntry(ctx context.Context, kind EntryKind, e Entry) error {
	table, parentCol, err := tableFor(kind)
	if err != nil {
		return err
	}
	var execErr error
	switch kind {
	case KindWorkspace:
		_, execErr = s.db.ExecContext(ctx,
			`INSERT INTO workspaces (id, title, icon_id, data, in_trash, banner_url, owner_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.IconID, e.Data, e.InTrash, e.BannerURL, e.OwnerID,
		)
	default:
		_, execErr = s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, title, icon_id, data, in_trash, banner_url, %s) VALUES (?, ?, ?, ?, ?, ?, ?)`, table, parentCol),
			e.ID, e.Title, e.IconID, e.Data, e.InTrash, e.BannerURL, e.ParentID,
		)
	}
	if execErr != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(execErr, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrEntryExists
		}
		return execErr
	}
	return nil
}

func (s *EntryStore) GetEntry(ctx context.Context, kind EntryKind, id string) (*Entry, error) {
	table, parentCol, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	e := &Entry{}
	var row *sql.Row
	switch kind {
	case KindWorkspace:
		row = s.db.QueryRowContext(ctx,
			`SELECT id, title, icon_id, data, in_trash, banner_url, owner_id, created_at FROM workspaces WHERE id = ?`, id)
		err = row.Scan(&e.ID, &e.Title, &e.IconID, &e.Data, &e.InTrash, &e.BannerURL, &e.OwnerID, &e.CreatedAt)
	default:
		row = s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT id, title, icon_id, data, in_trash, banner_url, %s, created_at FROM %s WHERE id = ?`, parentCol, table), id)
		err = row.Scan(&e.ID, &e.Title, &e.IconID, &e.Data, &e.InTrash, &e.BannerURL, &e.ParentID, &e.CreatedAt)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListChildren 列出某节点的子节点（workspace 的 folders / folder 的 files）。
// childKind 指定子节点类型。
func (s *EntryStore) ListChildren(ctx context.Context, childKind EntryKind, parentID string) ([]Entry, error) {
	table, parentCol, err := tableFor(childKind)
	if err != nil {
		return nil, err
	}
	if parentCol == "" {
		return nil, ErrUnknownKind
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, title, icon_id, data, in_trash, banner_url, %s, created_at FROM %s WHERE %s = ? ORDER BY created_at`, parentCol, table, parentCol),
		parentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Title, &e.IconID, &e.Data, &e.InTrash, &e.BannerURL, &e.ParentID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EntryStore) ListWorkspacesByOwner(ctx context.Context, ownerID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, icon_id, data, in_trash, banner_url, owner_id, created_at FROM workspaces WHERE owner_id = ? ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Title, &e.IconID, &e.Data, &e.InTrash, &e.BannerURL, &e.OwnerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntrySnapshot 读取节点的全量内容快照，用于会话引导。
// 返回空串表示该节点还没有内容。
func (s *EntryStore) GetEntrySnapshot(ctx context.Context, kind EntryKind, id string) (string, error) {
	table, _, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	var data string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, table), id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrEntryNotFound
		}
		return "", err
	}
	return data, nil
}

// UpdateEntrySnapshot 覆盖写入快照。没有乐观锁：并发保存以最后完成的写为准，
// 这是已知且接受的取舍（协作正确性依赖去抖保存链路，不靠中继无损）。
func (s *EntryStore) UpdateEntrySnapshot(ctx context.Context, kind EntryKind, id string, data string) error {
	return s.updateColumn(ctx, kind, id, "data", data)
}

func (s *EntryStore) UpdateEntryTitle(ctx context.Context, kind EntryKind, id string, title string) error {
	return s.updateColumn(ctx, kind, id, "title", title)
}

func (s *EntryStore) UpdateEntryIcon(ctx context.Context, kind EntryKind, id string, iconID string) error {
	return s.updateColumn(ctx, kind, id, "icon_id", iconID)
}

func (s *EntryStore) UpdateEntryBanner(ctx context.Context, kind EntryKind, id string, bannerURL string) error {
	return s.updateColumn(ctx, kind, id, "banner_url", bannerURL)
}

// UpdateEntryTrash inTrash 置空即恢复
func (s *EntryStore) UpdateEntryTrash(ctx context.Context, kind EntryKind, id string, inTrash string) error {
	return s.updateColumn(ctx, kind, id, "in_trash", inTrash)
}

func (s *EntryStore) DeleteEntry(ctx context.Context, kind EntryKind, id string) error {
	table, _, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *EntryStore) updateColumn(ctx context.Context, kind EntryKind, id, column, value string) error {
	table, _, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ?`, table, column), value, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// 0 行受影响也可能是值未变化；确认目标存在再判定 not found
		var one int
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrEntryNotFound
			}
			return err
		}
	}
	return nil
}
