package main

import (
	"context"
	"log"
	"os"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/storage/mongodb"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	ctx := context.Background()
	client, db, err := mongodb.Open(ctx, core.Conf)
	errAndDie(err)
	defer client.Disconnect(ctx)
	errAndDie(mongodb.EnsureIndexes(ctx, db))

	cli := commandLine{
		acctRepo: mongodb.NewAccountRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
