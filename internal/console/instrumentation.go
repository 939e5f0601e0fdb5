package console

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-realtime/internal/console"

var logger = otelslog.NewLogger(scopeName)
