package providers

import (
	"github.com/smallbiznis/digimart/internal/providers/email"
	"github.com/smallbiznis/digimart/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
