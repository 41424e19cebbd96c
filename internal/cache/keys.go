package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func CrashGroupKey(groupID uuid.UUID) string {
	return fmt.Sprintf("crash:group:%s", groupID)
}

func CrashGroupGenerationKey(groupID uuid.UUID) string {
	return fmt.Sprintf("crash:group:%s:gen", groupID)
}
