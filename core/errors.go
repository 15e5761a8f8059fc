package core

import (
	"context"
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可携带底层原因（Err），支持 errors.Is / errors.As
//   - 支持错误检查函数（IsXXX）
//
// 错误分级：
//   - CONFIG_ERROR：参数缺失/非法，当前阶段提前返回
//   - REMOTE_UNAVAILABLE / TIMEOUT：远端存储或文件系统失败，下个刷新周期重试，请求降级
//   - DECODE_ERROR：记录/快照损坏，跳过该桶/分片
//   - CHANNEL_UNSUPPORTED：未知召回通道，仅该通道失败
type DomainError struct {
	Code    string // 错误代码（如 "CONFIG_ERROR", "TIMEOUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "recall", "cache", "ann"）
	Err     error  // 底层原因（可为空）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Module + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Module + ": " + e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链上的 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建携带底层原因的领域错误
func WrapDomainError(module, code string, err error, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	ErrorCodeConfig             = "CONFIG_ERROR"        // 配置/参数错误
	ErrorCodeRemoteUnavailable  = "REMOTE_UNAVAILABLE"  // 远端存储/文件系统不可用
	ErrorCodeTimeout            = "TIMEOUT"             // 远端调用超时
	ErrorCodeDecode             = "DECODE_ERROR"        // 数据解码失败
	ErrorCodeChannelUnsupported = "CHANNEL_UNSUPPORTED" // 未知召回通道
)

// 模块名称常量
const (
	ModuleStore     = "store"     // 存储模块
	ModuleFeature   = "feature"   // 特征模块
	ModuleCache     = "cache"     // 本地缓存模块
	ModuleANN       = "ann"       // 向量索引模块
	ModuleRecall    = "recall"    // 召回模块
	ModuleMerge     = "merge"     // 融合模块
	ModuleFilter    = "filter"    // 过滤模块
	ModuleDiversity = "diversity" // 打散模块
	ModuleService   = "service"   // 服务模块
	ModuleDSL       = "dsl"       // 表达式模块
	ModulePipeline  = "pipeline"  // 策略配置模块
)

// ConfigError 构造参数错误
func ConfigError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeConfig, fmt.Sprintf(format, args...))
}

// DecodeError 构造解码错误
func DecodeError(module string, err error, format string, args ...any) *DomainError {
	return WrapDomainError(module, ErrorCodeDecode, err, format, args...)
}

// RemoteError 按原因归类远端错误：超时归为 TIMEOUT，其余归为 REMOTE_UNAVAILABLE。
func RemoteError(module string, err error, format string, args ...any) *DomainError {
	code := ErrorCodeRemoteUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrorCodeTimeout
	}
	return WrapDomainError(module, code, err, format, args...)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// 通用错误检查函数

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsConfigError 检查错误是否为 CONFIG_ERROR
func IsConfigError(err error) bool { return hasCode(err, ErrorCodeConfig) }

// IsRemoteUnavailable 检查错误是否为 REMOTE_UNAVAILABLE
func IsRemoteUnavailable(err error) bool { return hasCode(err, ErrorCodeRemoteUnavailable) }

// IsTimeout 检查错误是否为 TIMEOUT
func IsTimeout(err error) bool { return hasCode(err, ErrorCodeTimeout) }

// IsDecodeError 检查错误是否为 DECODE_ERROR
func IsDecodeError(err error) bool { return hasCode(err, ErrorCodeDecode) }

// IsChannelUnsupported 检查错误是否为 CHANNEL_UNSUPPORTED
func IsChannelUnsupported(err error) bool { return hasCode(err, ErrorCodeChannelUnsupported) }
