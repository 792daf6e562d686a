// Command metarest serves the descriptor-driven CRUD API.
package main

func main() {
	Execute()
}
