package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/binwatch/server"
)

func main() {
	parser := argparse.NewParser("binwatchd", "Trash disposal assessment server")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "binwatch.json"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	s, err := server.NewServer(*configFilePath)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	s.ListenForKillSignals()
	err = s.ListenHTTP()
	if errors.Is(err, http.ErrServerClosed) {
		<-s.ShutdownComplete()
	} else {
		s.Log.Errorf("%v", err)
		s.Shutdown()
	}
	s.Log.Close()
	if !errors.Is(err, http.ErrServerClosed) {
		os.Exit(1)
	}
}
