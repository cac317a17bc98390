// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFieldName 表示字段名称包含字母、数字和下划线以外的字符。
	ErrInvalidFieldName = errors.New("XDao: field name is invalid")

	// ErrEmptyData 表示写入的数据为空。
	ErrEmptyData = errors.New("XDao: data is empty")

	// ErrEmptyIdentifier 表示更新或删除时未指定条件，拒绝作用于整张数据表。
	ErrEmptyIdentifier = errors.New("XDao: identifier is empty")

	// ErrNestedTransaction 表示在同一 goroutine 中嵌套开启事务。
	ErrNestedTransaction = errors.New("XDao: nested transaction is not supported")

	// ErrLockUnsupported 表示当前数据库类型不支持命名锁。
	ErrLockUnsupported = errors.New("XDao: named lock is not supported by driver")

	// ErrNotConnected 表示连接已被关闭。
	ErrNotConnected = errors.New("XDao: driver is not connected")
)

// FieldNameError 描述了一个非法的字段名称，可通过 errors.Is(err, ErrInvalidFieldName) 判断。
type FieldNameError struct {
	Field string
}

func (e *FieldNameError) Error() string {
	return fmt.Sprintf("XDao: field name %q is invalid", e.Field)
}

func (e *FieldNameError) Unwrap() error { return ErrInvalidFieldName }

// QueryError 描述了语句在执行过程中发生的错误，携带原始语句、连接角色及底层驱动错误。
type QueryError struct {
	Role      Role
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("XDao: query failed during execution on %v, statement: %v, err: %v", e.Role, e.Statement, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ConnectError 描述了建立连接时发生的错误。
type ConnectError struct {
	Role Role
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("XDao: connect to %v failed, err: %v", e.Role, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsInvalidInput 判断错误是否由调用方的输入引起（无需重试，应修正输入）。
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidFieldName) ||
		errors.Is(err, ErrEmptyData) ||
		errors.Is(err, ErrEmptyIdentifier)
}

// IsInfrastructure 判断错误是否由连接或执行失败引起。
func IsInfrastructure(err error) bool {
	var qe *QueryError
	var ce *ConnectError
	return errors.As(err, &qe) || errors.As(err, &ce)
}

// queryError 包装底层错误，已包装过的错误不会重复包装。
func queryError(role Role, statement string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Role: role, Statement: statement, Err: err}
}
