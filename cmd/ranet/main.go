package main

import (
	"github.com/galdor/go-service/pkg/service"
)

func main() {
	service.Run("ranet", "a replicated log server", NewService())
}
