package main

import "receipt-ledger/cmd"

func main() {
	cmd.Execute()
}
