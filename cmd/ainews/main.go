// Command ainews はAIニュース記事の取り込み・レビュー・公開を行うサーバーとワーカーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/Karans11/ai-news-app/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ainews: %v\n", err)
		os.Exit(1)
	}
}
