package endpoints

import (
	"github.com/jackzampolin/tlfpack/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health
		&HealthEndpoint{},

		// Working folder and review
		&ScanEndpoint{},
		&ListDocumentsEndpoint{},
		&CountsEndpoint{},
		&UpdateDocumentEndpoint{},
		&MoveDocumentEndpoint{},
		&SelectAllEndpoint{},
		&SortEndpoint{},
		&FilterEndpoint{},

		// Review table files
		&ExportEndpoint{},
		&SaveManifestEndpoint{},
		&ImportEndpoint{},

		// Runs
		&PackEndpoint{},
		&ConvertEndpoint{},
		&ListRunsEndpoint{},
		&GetRunEndpoint{},
		&RunLogEndpoint{},
		&CancelRunEndpoint{},
	}
}
