package exchange

import (
	"errors"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrAuth 表示密钥无效或权限不足，重试没有意义。
	ErrAuth = errors.New("exchange authentication failed")
	// ErrRateLimit 表示触发限频。
	ErrRateLimit = errors.New("exchange rate limit exceeded")
	// ErrTransport 表示网络或交易所侧的临时故障。
	ErrTransport = errors.New("exchange transport failure")
	// ErrConstraintUnavailable 表示交易所元数据缺少该交易对的过滤规则。
	ErrConstraintUnavailable = errors.New("symbol constraints unavailable")
)

// Normalize 将底层错误归入统一分类，保留原始信息。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.AuthenticationErrorErrType, ccxt.PermissionDeniedErrType:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		case ccxt.RateLimitExceededErrType, ccxt.DDoSProtectionErrType:
			return fmt.Errorf("%w: %v", ErrRateLimit, err)
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.OnMaintenanceErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	return err
}

// IsRetryable 判断错误是否可重试。认证类错误不重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return false
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTransport) {
		return true
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		}
	}

	return false
}
