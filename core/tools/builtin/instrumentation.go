package builtin

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-realtime/core/tools/builtin"

var logger = otelslog.NewLogger(scopeName)
