package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

// Classify translates a provider call failure into the application taxonomy.
// err is what SendJSON (or any transport) returned; nil stays nil.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ae *common.AppError
	if errors.As(err, &ae) {
		return err
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(provider, se)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.ProviderTimeout(provider+" call exceeded its deadline", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return common.ProviderTimeout(provider+" call timed out", err)
	}
	return common.ProviderUnavailable(provider+" transport failure", err)
}

func classifyStatus(provider string, se *StatusError) error {
	msg := fmt.Sprintf("%s responded %d", provider, se.Status)
	switch {
	case se.Status == http.StatusRequestTimeout, se.Status == http.StatusGatewayTimeout:
		return common.ProviderTimeout(msg, se)
	case se.Status == http.StatusUnauthorized, se.Status == http.StatusForbidden,
		se.Status == http.StatusNotFound, se.Status == http.StatusTooManyRequests,
		se.Status >= 500:
		return common.ProviderUnavailable(msg, se)
	case se.Status >= 400:
		return common.NewAppError(common.CodeInvalidInput, msg, errors.Join(common.ErrInvalidInput, se))
	default:
		return common.ProviderUnavailable(msg, se)
	}
}
