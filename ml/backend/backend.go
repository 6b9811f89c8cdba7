// backend.go - Registriert alle eingebauten Backends
// Ein Blank-Import dieses Pakets macht cpu und accel fuer ml.NewContext verfuegbar.
package backend

import (
	_ "github.com/ollama/devcheck/ml/backend/accel"
	_ "github.com/ollama/devcheck/ml/backend/cpu"
)
