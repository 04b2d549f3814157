package sessions

import "github.com/dexto-ai/dexto-core/pkg/dexto"

func cancelledError() *dexto.Error {
	return dexto.NewError(dexto.CodeCancelled, "run cancelled", nil)
}
