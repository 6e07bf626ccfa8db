package audit

import (
	"github.com/smallbiznis/digimart/internal/audit/repository"
	"github.com/smallbiznis/digimart/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the append-only audit trail. Admin review decisions,
// processed refunds and authorization denials write to it; the admin
// audit-logs route reads it.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
