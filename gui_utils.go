package hatsetup

import (
	"github.com/gotk3/gotk3/glib"
	"github.com/gotk3/gotk3/gtk"
)

func getObject(builder *gtk.Builder, name string) glib.IObject {
	obj, err := builder.GetObject(name)
	if err != nil {
		return nil
	}
	return obj
}

func getWindow(builder *gtk.Builder, name string) *gtk.Window {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.Window); ok {
		return w
	} else {
		return nil
	}
}

func getDialog(builder *gtk.Builder, name string) *gtk.Dialog {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.Dialog); ok {
		return w
	} else {
		return nil
	}
}

func getLabel(builder *gtk.Builder, name string) *gtk.Label {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.Label); ok {
		return w
	} else {
		return nil
	}
}

func getComboBoxText(builder *gtk.Builder, name string) *gtk.ComboBoxText {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.ComboBoxText); ok {
		return w
	} else {
		return nil
	}
}

func getButton(builder *gtk.Builder, name string) *gtk.Button {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.Button); ok {
		return w
	} else {
		return nil
	}
}

func getEntry(builder *gtk.Builder, name string) *gtk.Entry {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.Entry); ok {
		return w
	} else {
		return nil
	}
}

func getProgressBar(builder *gtk.Builder, name string) *gtk.ProgressBar {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.ProgressBar); ok {
		return w
	} else {
		return nil
	}
}

func getTextView(builder *gtk.Builder, name string) *gtk.TextView {
	obj := getObject(builder, name)
	if w, ok := obj.(*gtk.TextView); ok {
		return w
	} else {
		return nil
	}
}
