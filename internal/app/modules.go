package app

import (
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/modules/localfs"
	"github.com/vk/hostmaint/modules/null"
	"github.com/vk/hostmaint/modules/s3"
)

// coreModules is the definitive list of all backends that are compiled into
// the hostmaint binary.
var coreModules = []backend.Module{
	&null.Module{},
	&localfs.Module{},
	&s3.Module{},
}
