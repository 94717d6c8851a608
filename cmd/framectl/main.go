// Command framectl formats, inspects and benchmarks frame allocator files.
package main

func main() {
	execute()
}
