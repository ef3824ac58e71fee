package main

import (
	aircopy "github.com/doismellburning/aircopy/src"
)

func main() {
	aircopy.AircopyMain()
}
