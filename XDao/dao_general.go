// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/beego/beego/v2/client/orm"
)

// generalKey 为通用数据访问对象的主键列名。
const generalKey = "id"

var _ IDao = (*GeneralDao)(nil)

// GeneralDao 为单表的通用数据访问对象，读取经由缓存策略，写入后触发缓存策略的回调。
// 读取默认使用从库路径，masterReads 为 true 时使用主库以读取自身的写入。
// 在事务中写入时，回调会立即触发一次，并在提交成功后再次触发；事务中的读取不经过缓存。
type GeneralDao struct {
	table       string
	router      IRouter
	cache       ICacheStrategy
	masterReads bool
}

// NewGeneralDao 创建通用数据访问对象，cache 为空时禁用缓存。
func NewGeneralDao(table string, router IRouter, cache ICacheStrategy, masterReads ...bool) *GeneralDao {
	if cache == nil {
		cache = NewNoneCacheStrategy()
	}
	dao := &GeneralDao{table: table, router: router, cache: cache}
	if len(masterReads) > 0 {
		dao.masterReads = masterReads[0]
	}
	return dao
}

func (dao *GeneralDao) Table() string { return dao.table }

// strategy 返回本次调用使用的缓存策略，事务中的读取可能看到未提交的数据，故不经过缓存。
func (dao *GeneralDao) strategy() ICacheStrategy {
	if dao.router.Transacting() {
		return NewNoneCacheStrategy()
	}
	return dao.cache
}

func (dao *GeneralDao) read(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	if dao.masterReads {
		return dao.router.ExecuteOnMaster(ctx, statement, args...)
	}
	return dao.router.ExecuteOnSlave(ctx, statement, args...)
}

func (dao *GeneralDao) first(ctx context.Context, where string, args []any) (orm.Params, error) {
	rows, err := dao.read(ctx, "SELECT * FROM "+dao.table+" WHERE "+where+" LIMIT 1", args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Get 按主键读取一行，不存在时返回 nil。
func (dao *GeneralDao) Get(ctx context.Context, id any) (orm.Params, error) {
	row, err := CachedGet(dao.strategy(), dao, "Get", []any{id}, func() (orm.Params, error) {
		return dao.first(ctx, generalKey+" = ?", []any{id})
	})
	return maps.Clone(row), err
}

// GetBy 按等值条件读取一行，不存在时返回 nil。
func (dao *GeneralDao) GetBy(ctx context.Context, conditions map[string]any) (orm.Params, error) {
	where, args, err := buildWhere(conditions)
	if err != nil {
		return nil, err
	}
	row, err := CachedGet(dao.strategy(), dao, "GetBy", []any{conditions}, func() (orm.Params, error) {
		return dao.first(ctx, where, args)
	})
	return maps.Clone(row), err
}

// Find 按主键列表读取多行，ids 为空时不执行查询。
func (dao *GeneralDao) Find(ctx context.Context, ids []any) ([]orm.Params, error) {
	if len(ids) == 0 {
		return []orm.Params{}, nil
	}
	rows, err := CachedFind(dao.strategy(), dao, "Find", []any{ids}, func() ([]orm.Params, error) {
		return dao.read(ctx, "SELECT * FROM "+dao.table+" WHERE "+generalKey+" IN ("+marks(len(ids))+")", ids...)
	})
	return cloneRows(rows), err
}

// Search 按等值条件列举数据。orderBy 中以 - 开头的列为降序；limit 小于等于 0 时不限制数量。
func (dao *GeneralDao) Search(ctx context.Context, conditions map[string]any, orderBy []string, start, limit int) ([]orm.Params, error) {
	statement, args, err := dao.buildSearch(conditions, orderBy, start, limit)
	if err != nil {
		return nil, err
	}
	rows, err := CachedSearch(dao.strategy(), dao, "Search", []any{conditions, orderBy, start, limit}, func() ([]orm.Params, error) {
		return dao.read(ctx, statement, args...)
	})
	return cloneRows(rows), err
}

func (dao *GeneralDao) buildSearch(conditions map[string]any, orderBy []string, start, limit int) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(dao.table)

	var args []any
	if len(conditions) > 0 {
		where, wargs, err := buildWhere(conditions)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = wargs
	}

	if len(orderBy) > 0 {
		orders := make([]string, len(orderBy))
		for i, column := range orderBy {
			dir := " ASC"
			if strings.HasPrefix(column, "-") {
				column = column[1:]
				dir = " DESC"
			}
			if !validFieldName(column) {
				return "", nil, &FieldNameError{Field: column}
			}
			orders[i] = column + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}

	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
		if start > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, start)
		}
	}
	return sb.String(), args, nil
}

// Count 统计符合等值条件的行数，conditions 为空时统计全表。
func (dao *GeneralDao) Count(ctx context.Context, conditions map[string]any) (int64, error) {
	statement := "SELECT COUNT(*) AS cnt FROM " + dao.table
	var args []any
	if len(conditions) > 0 {
		where, wargs, err := buildWhere(conditions)
		if err != nil {
			return 0, err
		}
		statement += " WHERE " + where
		args = wargs
	}
	rows, err := dao.read(ctx, statement, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["cnt"])
}

// Create 插入一行数据。
func (dao *GeneralDao) Create(ctx context.Context, fields map[string]any) (Result, error) {
	ret, err := dao.router.Insert(ctx, dao.table, fields)
	if err != nil {
		return ret, err
	}
	row := maps.Clone(fields)
	dao.mutated(func() { dao.cache.AfterCreate(dao, "Create", []any{row}, row) })
	return ret, nil
}

// Update 按主键更新一行数据。
func (dao *GeneralDao) Update(ctx context.Context, id any, fields map[string]any) (Result, error) {
	ret, err := dao.router.Update(ctx, dao.table, fields, map[string]any{generalKey: id})
	if err != nil {
		return ret, err
	}
	row := maps.Clone(fields)
	dao.mutated(func() { dao.cache.AfterUpdate(dao, "Update", []any{id, row}, row) })
	return ret, nil
}

// Wave 对主键列表中的行按 diffs 增减数值列，例如 {"stock": -1}。
func (dao *GeneralDao) Wave(ctx context.Context, ids []any, diffs map[string]int) (Result, error) {
	if len(ids) == 0 {
		return Result{}, ErrEmptyIdentifier
	}
	if len(diffs) == 0 {
		return Result{}, ErrEmptyData
	}
	keys := make([]string, 0, len(diffs))
	for k := range diffs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := ValidateFieldNames(keys); err != nil {
		return Result{}, err
	}

	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(ids))
	for i, k := range keys {
		sets[i] = k + " = " + k + " + ?"
		args = append(args, diffs[k])
	}
	args = append(args, ids...)
	statement := "UPDATE " + dao.table + " SET " + strings.Join(sets, ", ") +
		" WHERE " + generalKey + " IN (" + marks(len(ids)) + ")"

	ret, err := dao.router.Exec(ctx, statement, args...)
	if err != nil {
		return ret, err
	}
	dao.mutated(func() { dao.cache.AfterBatchUpdate(dao, "Wave", []any{ids, diffs}, ret.RowsAffected) })
	return ret, nil
}

// Delete 按主键删除一行数据。
func (dao *GeneralDao) Delete(ctx context.Context, id any) (Result, error) {
	ret, err := dao.router.Delete(ctx, dao.table, map[string]any{generalKey: id})
	if err != nil {
		return ret, err
	}
	dao.mutated(func() { dao.cache.AfterDelete(dao, "Delete", []any{id}) })
	return ret, nil
}

// mutated 立即触发回调，若处于事务中则在提交成功后再次触发。
// 其他 goroutine 在提交前读取的旧数据可能被缓存，提交后的回调保证其失效。
func (dao *GeneralDao) mutated(fn func()) {
	fn()
	dao.router.AfterCommit(fn)
}

func marks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func cloneRows(rows []orm.Params) []orm.Params {
	if rows == nil {
		return nil
	}
	ret := make([]orm.Params, len(rows))
	for i, row := range rows {
		ret[i] = maps.Clone(row)
	}
	return ret
}

// toInt64 转换计数查询返回的列值，驱动可能返回整数、字符串或字节切片。
func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return strconv.ParseInt(fmt.Sprint(v), 10, 64)
	}
}
