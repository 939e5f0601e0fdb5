package observe

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-realtime/internal/observe"

var logger = otelslog.NewLogger(scopeName)
