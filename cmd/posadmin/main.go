// posadmin is the operator CLI: schema migration, user bootstrap and
// dead-letter replay.
package main

func main() {
	Execute()
}
