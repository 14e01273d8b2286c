package main

import (
	"context"
	"fmt"
	"os"

	"toolhost/internal/app"
)

func closeContainer(c *app.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
}
