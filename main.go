// Command formharvest harvests PDF forms from the web.
package main

import "github.com/JakeFAU/formharvest/cmd"

func main() {
	cmd.Execute()
}
