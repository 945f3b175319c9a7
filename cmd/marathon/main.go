// Command marathon runs a backlog of work items through bounded, validated,
// checkpointed coding sessions that survive restarts.
package main

func main() {
	Execute()
}
